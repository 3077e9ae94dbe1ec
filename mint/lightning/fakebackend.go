package lightning

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const (
	FakePreimage = "0000000000000000"
	// FailPaymentDescription, when used as an invoice description, makes
	// PayInvoice report the payment as failed. Tests use it to exercise
	// the melt failure path without a real Lightning node.
	FailPaymentDescription = "fail the payment"
)

type fakeInvoice struct {
	Invoice
	Paid bool
}

// FakeBackend is a Lightning backend for tests: it builds real BOLT-11
// invoices (so DecodeInvoice round-trips through the same decoder a real
// backend would use) but settles and pays them in memory.
type FakeBackend struct {
	invoices []fakeInvoice
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

func (fb *FakeBackend) CreateInvoice(amountSat uint64) (Invoice, error) {
	req, _, paymentHash, err := CreateFakeInvoice(amountSat, false)
	if err != nil {
		return Invoice{}, err
	}

	inv := fakeInvoice{
		Invoice: Invoice{
			PaymentRequest: req,
			PaymentHash:    paymentHash,
			Amount:         amountSat,
			Expiry:         uint64(time.Now().Add(time.Hour).Unix()),
		},
	}
	fb.invoices = append(fb.invoices, inv)

	return inv.Invoice, nil
}

// MarkPaid lets tests settle a previously created invoice, since
// FakeBackend has no real node pushing payment notifications.
func (fb *FakeBackend) MarkPaid(paymentRequest string) {
	idx := slices.IndexFunc(fb.invoices, func(i fakeInvoice) bool {
		return i.PaymentRequest == paymentRequest
	})
	if idx != -1 {
		fb.invoices[idx].Paid = true
	}
}

func (fb *FakeBackend) IsInvoicePaid(_ context.Context, paymentRequest string) (bool, error) {
	idx := slices.IndexFunc(fb.invoices, func(i fakeInvoice) bool {
		return i.PaymentRequest == paymentRequest
	})
	if idx == -1 {
		return false, errors.New("invoice does not exist")
	}
	return fb.invoices[idx].Paid, nil
}

func (fb *FakeBackend) DecodeInvoice(paymentRequest string) (Bolt11, error) {
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return Bolt11{}, fmt.Errorf("error decoding invoice: %v", err)
	}

	return Bolt11{
		PaymentHash: decoded.PaymentHash,
		AmountMsat:  uint64(decoded.MSatoshi),
		Description: decoded.Description,
	}, nil
}

func (fb *FakeBackend) PayInvoice(_ context.Context, paymentRequest string, _ uint64) (PaymentResult, error) {
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error decoding invoice: %v", err)
	}

	if decoded.Description == FailPaymentDescription {
		return PaymentResult{}, errors.New("payment failed")
	}

	return PaymentResult{
		PaymentHash:   decoded.PaymentHash,
		TotalFeesMsat: 0,
		Preimage:      FakePreimage,
	}, nil
}

// CreateFakeInvoice builds a real, self-signed BOLT-11 invoice without
// needing a live node: a fresh throwaway key signs it, exactly as
// zpay32 expects.
func CreateFakeInvoice(amount uint64, failPayment bool) (string, string, string, error) {
	var random [32]byte
	_, err := rand.Read(random[:])
	if err != nil {
		return "", "", "", err
	}
	preimage := hex.EncodeToString(random[:])
	paymentHash := sha256.Sum256(random[:])
	hash := hex.EncodeToString(paymentHash[:])

	description := "test"
	if failPayment {
		description = FailPaymentDescription
	}

	invoice, err := zpay32.NewInvoice(
		&chaincfg.SigNetParams,
		paymentHash,
		time.Now(),
		zpay32.Amount(lnwire.MilliSatoshi(amount*1000)),
		zpay32.Description(description),
	)
	if err != nil {
		return "", "", "", err
	}

	invoiceStr, err := invoice.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			key, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return []byte{}, err
			}
			return ecdsa.SignCompact(key, msg, true), nil
		},
	})
	if err != nil {
		return "", "", "", err
	}

	return invoiceStr, preimage, hash, nil
}
