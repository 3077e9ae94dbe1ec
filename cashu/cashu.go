// Package cashu contains the core structs and logic
// of the Cashu protocol.
package cashu

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

type Unit int

const (
	Sat Unit = iota

	BOLT11_METHOD = "bolt11"
)

func (unit Unit) String() string {
	switch unit {
	case Sat:
		return "sat"
	default:
		return "unknown"
	}
}

// Cashu BlindedMessage. See https://github.com/cashubtc/nuts/blob/main/00.md#blindedmessage
type BlindedMessage struct {
	Amount uint64 `json:"amount"`
	B_     string `json:"B_"`
	Id     string `json:"id"`
}

func NewBlindedMessage(id string, amount uint64, B_ *secp256k1.PublicKey) BlindedMessage {
	B_str := hex.EncodeToString(B_.SerializeCompressed())
	return BlindedMessage{Amount: amount, B_: B_str, Id: id}
}

func SortBlindedMessages(blindedMessages BlindedMessages, secrets []string, rs []*secp256k1.PrivateKey) {
	for i := 0; i < len(blindedMessages)-1; i++ {
		for j := i + 1; j < len(blindedMessages); j++ {
			if blindedMessages[i].Amount > blindedMessages[j].Amount {
				blindedMessages[i], blindedMessages[j] = blindedMessages[j], blindedMessages[i]
				secrets[i], secrets[j] = secrets[j], secrets[i]
				rs[i], rs[j] = rs[j], rs[i]
			}
		}
	}
}

type BlindedMessages []BlindedMessage

func (bm BlindedMessages) Amount() uint64 {
	var totalAmount uint64 = 0
	for _, msg := range bm {
		totalAmount += msg.Amount
	}
	return totalAmount
}

// CheckDuplicates reports whether any two blinded messages carry the
// same B_ point. Unlike duplicate secrets in Proofs, this must be checked
// within a single request since blinded messages carry no history a
// datastore could check against.
func (bm BlindedMessages) CheckDuplicates() bool {
	seen := make(map[string]bool, len(bm))
	for _, msg := range bm {
		if seen[msg.B_] {
			return true
		}
		seen[msg.B_] = true
	}
	return false
}

// Cashu BlindedSignature. See https://github.com/cashubtc/nuts/blob/main/00.md#blindsignature
type BlindedSignature struct {
	Amount uint64 `json:"amount"`
	C_     string `json:"C_"`
	Id     string `json:"id"`
}

type BlindedSignatures []BlindedSignature

func (bs BlindedSignatures) Amount() uint64 {
	var totalAmount uint64 = 0
	for _, sig := range bs {
		totalAmount += sig.Amount
	}
	return totalAmount
}

// Cashu Proof. See https://github.com/cashubtc/nuts/blob/main/00.md#proof
type Proof struct {
	Amount uint64 `json:"amount"`
	Id     string `json:"id"`
	Secret string `json:"secret"`
	C      string `json:"C"`
}

type Proofs []Proof

// Amount returns the total amount from
// the array of Proof
func (proofs Proofs) Amount() uint64 {
	var totalAmount uint64 = 0
	for _, proof := range proofs {
		totalAmount += proof.Amount
	}
	return totalAmount
}

type CashuErrCode int

// Error represents an error to be returned by the mint
type Error struct {
	Detail string       `json:"detail"`
	Code   CashuErrCode `json:"code"`
}

func BuildCashuError(detail string, code CashuErrCode) *Error {
	return &Error{Detail: detail, Code: code}
}

func (e Error) Error() string {
	return e.Detail
}

// Common error codes
const (
	StandardErrCode CashuErrCode = 10000
	// These will never be returned in a response.
	// Using them to identify internally where
	// the error originated and log appropriately
	DBErrCode               CashuErrCode = 1
	LightningBackendErrCode CashuErrCode = 2

	UnitErrCode                        CashuErrCode = 11005
	PaymentMethodErrCode               CashuErrCode = 11007
	BlindedMessageAlreadySignedErrCode CashuErrCode = 10002

	InvalidProofErrCode            CashuErrCode = 10003
	ProofAlreadyUsedErrCode        CashuErrCode = 11001
	InsufficientProofAmountErrCode CashuErrCode = 11002

	UnknownKeysetErrCode  CashuErrCode = 12001
	InactiveKeysetErrCode CashuErrCode = 12002

	AmountLimitExceeded CashuErrCode = 11006

	InvoiceNotFoundErrCode    CashuErrCode = 13001
	InvoiceNotPaidErrCode     CashuErrCode = 13002
	InvoiceAmountMismatch     CashuErrCode = 13003
	InvoiceAlreadyIssuedErr   CashuErrCode = 13004
	InvoiceAmountTooLowErr    CashuErrCode = 13005
	ChangeConservationErrCode CashuErrCode = 13006
	InvalidInvoiceErrCode     CashuErrCode = 13007
	InvoiceAmountMissingCode  CashuErrCode = 13008
	LightningPaymentFailedCode CashuErrCode = 13009

	SwapDuplicateProofsCode        CashuErrCode = 11003
	SwapHasDuplicatePromisesCode   CashuErrCode = 11004
	SwapAmountMismatchCode         CashuErrCode = 11008
	UnsupportedDenominationCode    CashuErrCode = 11009
	KeysetDerivationFailedCode     CashuErrCode = 12003
	InvalidPointErrCode            CashuErrCode = 10004
)

var (
	StandardErr                 = Error{Detail: "mint is currently unable to process request", Code: StandardErrCode}
	EmptyBodyErr                = Error{Detail: "request body cannot be empty", Code: StandardErrCode}
	UnknownKeysetErr            = Error{Detail: "unknown keyset", Code: UnknownKeysetErrCode}
	PaymentMethodNotSupportedErr = Error{Detail: "payment method not supported", Code: PaymentMethodErrCode}
	UnitNotSupportedErr          = Error{Detail: "unit not supported", Code: UnitErrCode}
	InvalidBlindedMessageAmount  = Error{Detail: "invalid amount in blinded message", Code: StandardErrCode}
	BlindedMessageAlreadySigned  = Error{Detail: "blinded message already signed", Code: BlindedMessageAlreadySignedErrCode}
	ProofAlreadyUsedErr          = Error{Detail: "proof already used", Code: ProofAlreadyUsedErrCode}
	InvalidProofErr              = Error{Detail: "invalid proof", Code: InvalidProofErrCode}
	NoProofsProvided             = Error{Detail: "no proofs provided", Code: InvalidProofErrCode}
	DuplicateProofs              = Error{Detail: "duplicate proofs", Code: InvalidProofErrCode}
	DuplicateOutputs             = Error{Detail: "duplicate outputs", Code: InvalidProofErrCode}
	InsufficientProofsAmount    = Error{
		Detail: "amount of input proofs is below amount needed for transaction",
		Code:   InsufficientProofAmountErrCode,
	}
	InactiveKeysetSignatureRequest = Error{Detail: "requested signature from inactive keyset", Code: InactiveKeysetErrCode}

	InvoiceNotFoundErr = Error{Detail: "invoice not found", Code: InvoiceNotFoundErrCode}
	// InvoiceNotPaidYetErr carries the exact legacy detail string clients
	// have historically matched on to decide whether to keep polling.
	InvoiceNotPaidYetErr   = Error{Detail: "Lightning invoice not paid yet.", Code: InvoiceNotPaidErrCode}
	InvoiceAlreadyIssued   = Error{Detail: "invoice already issued", Code: InvoiceAlreadyIssuedErr}
	OutputAmountMismatch   = Error{Detail: "sum of the output amounts does not match invoice amount", Code: InvoiceAmountMismatch}
	InvoiceAmountTooLow    = Error{Detail: "amount in invoice is less than the required amount", Code: InvoiceAmountTooLowErr}
	ChangeConservationErr = Error{Detail: "requested change outputs do not conserve value", Code: ChangeConservationErrCode}
	InvalidInvoiceErr      = Error{Detail: "invalid invoice", Code: InvalidInvoiceErrCode}
	InvoiceAmountMissingErr = Error{Detail: "invoice has no amount", Code: InvoiceAmountMissingCode}
	LightningPaymentFailedErr = Error{Detail: "lightning payment failed", Code: LightningPaymentFailedCode}

	SwapDuplicateProofs      = Error{Detail: "duplicate proofs in swap request", Code: SwapDuplicateProofsCode}
	SwapHasDuplicatePromises = Error{Detail: "duplicate outputs in swap request", Code: SwapHasDuplicatePromisesCode}
	SwapAmountMismatchErr    = Error{Detail: "sum of outputs does not match sum of inputs", Code: SwapAmountMismatchCode}
	UnsupportedDenominationErr = Error{Detail: "amount is not a supported denomination", Code: UnsupportedDenominationCode}
	KeysetDerivationFailedErr  = Error{Detail: "keyset derivation failed", Code: KeysetDerivationFailedCode}
	InvalidPointErr            = Error{Detail: "invalid point", Code: InvalidPointErrCode}
)

// Given an amount, it returns list of amounts e.g 13 -> [1, 4, 8]
// that can be used to build blinded messages or split operations.
// from nutshell implementation
func AmountSplit(amount uint64) []uint64 {
	rv := make([]uint64, 0)
	for pos := 0; amount > 0; pos++ {
		if amount&1 == 1 {
			rv = append(rv, 1<<pos)
		}
		amount >>= 1
	}
	return rv
}

var ErrAmountOverflows = errors.New("amount overflows uint64")

// AmountChecked sums blinded message amounts the same way Amount does, but
// reports overflow instead of silently wrapping. Outputs arrive from the
// wire, so unlike an internally-computed sum they cannot be assumed to fit.
func (bm BlindedMessages) AmountChecked() (uint64, error) {
	var total uint64
	for _, msg := range bm {
		var overflow bool
		total, overflow = OverflowAddUint64(total, msg.Amount)
		if overflow {
			return 0, ErrAmountOverflows
		}
	}
	return total, nil
}

// OverflowAddUint64 adds a and b, reporting whether the result overflowed
// uint64 instead of wrapping.
func OverflowAddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum < a
}

// UnderflowSubUint64 subtracts b from a, reporting whether the result
// would be negative instead of wrapping.
func UnderflowSubUint64(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, true
	}
	return a - b, false
}

// CheckDuplicateProofs reports whether any two proofs in the batch share
// a secret. Secrets, not the whole proof, are what must be pairwise
// distinct (spec.md §4.5.4 step 1): a proof is redeemable by its secret
// alone, so two proofs differing only in amount/id/C but sharing a
// secret are still the same spend attempted twice.
func CheckDuplicateProofs(proofs Proofs) bool {
	seen := make(map[string]bool, len(proofs))

	for _, proof := range proofs {
		if seen[proof.Secret] {
			return true
		}
		seen[proof.Secret] = true
	}

	return false
}

func GenerateRandomQuoteId() (string, error) {
	randomBytes := make([]byte, 32)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(randomBytes)
	return hex.EncodeToString(hash[:]), nil
}

func Max(x, y uint64) uint64 {
	if x > y {
		return x
	}
	return y
}

func Count(amounts []uint64, amount uint64) uint {
	var count uint = 0
	for _, amt := range amounts {
		if amt == amount {
			count++
		}
	}
	return count
}
