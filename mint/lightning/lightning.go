// Package lightning defines the mint's Lightning contract and its
// concrete backends.
package lightning

import "context"

// Invoice is a Lightning invoice the mint created, independent of any
// particular backend's wire representation.
type Invoice struct {
	PaymentRequest string
	PaymentHash    string
	Amount         uint64
	Expiry         uint64
}

// Bolt11 is the decoded form of a BOLT-11 payment request, as needed to
// validate a melt request against what the payer claims to be paying.
type Bolt11 struct {
	PaymentHash string
	AmountMsat  uint64
	Description string
}

// PaymentResult is returned once a payment has been attempted.
type PaymentResult struct {
	PaymentHash    string
	TotalFeesMsat  uint64
	Preimage       string
}

// Backend is the contract the mint core uses to talk to a Lightning node
// or wallet, regardless of which one backs it.
type Backend interface {
	CreateInvoice(amountSat uint64) (Invoice, error)

	// IsInvoicePaid should be called with a short-deadline context: the
	// mint core calls it synchronously from client-facing requests and
	// must not block on a slow or unreachable node.
	IsInvoicePaid(ctx context.Context, paymentRequest string) (bool, error)

	DecodeInvoice(paymentRequest string) (Bolt11, error)

	PayInvoice(ctx context.Context, paymentRequest string, feeReserveMsat uint64) (PaymentResult, error)
}
