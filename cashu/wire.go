package cashu

// Wire types for the legacy (pre-quote) Cashu HTTP API that this mint
// implements: mint/melt/swap are driven by an opaque key rather than a
// quote id, matching the shape moksha-mint exposes.

// PostSplitRequest is the body of a swap request: proofs being spent and
// the blinded messages to sign in exchange.
type PostSplitRequest struct {
	Proofs  Proofs          `json:"proofs"`
	Outputs BlindedMessages `json:"outputs"`
}

// PostSplitResponse carries the returned blind signatures under both
// "signatures" and "promises": different wallet generations read either
// field name for the same payload, so both are populated on construction.
type PostSplitResponse struct {
	Signatures BlindedSignatures `json:"signatures"`
	Promises   BlindedSignatures `json:"promises"`
}

func NewPostSplitResponse(sigs BlindedSignatures) PostSplitResponse {
	return PostSplitResponse{Signatures: sigs, Promises: sigs}
}

// PaymentRequest is the body of a melt request: the Lightning invoice to
// pay and the proofs covering its amount plus fee reserve.
type PaymentRequest struct {
	PR      string          `json:"pr"`
	Proofs  Proofs          `json:"proofs"`
	Outputs BlindedMessages `json:"outputs,omitempty"`
}

// PostMeltResponse reports the outcome of a melt. Change is populated only
// when the request supplied blank outputs for change and the mint chose
// to return change; otherwise it is empty.
type PostMeltResponse struct {
	Paid     bool              `json:"paid"`
	Preimage string            `json:"preimage"`
	Change   BlindedSignatures `json:"change,omitempty"`
}

// PostMintRequest is the body of a mint request once the referenced
// invoice has been paid.
type PostMintRequest struct {
	Outputs BlindedMessages `json:"outputs"`
}

type PostMintResponse struct {
	Promises BlindedSignatures `json:"promises"`
}

// CheckFeesRequest asks the mint to estimate the Lightning fee reserve
// for paying a given invoice, ahead of constructing a PaymentRequest.
type CheckFeesRequest struct {
	PR string `json:"pr"`
}

type CheckFeesResponse struct {
	Fee uint64 `json:"fee"`
}

// RequestMintResponse is returned from the invoice-creation step: the
// Lightning invoice the caller should pay, and the opaque key they must
// present back to mint_tokens once it settles.
type RequestMintResponse struct {
	PR   string `json:"pr"`
	Hash string `json:"hash"`
}
