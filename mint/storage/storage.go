// Package storage defines the mint's persistence contract: the set of
// proofs that have already been redeemed, and invoices awaiting payment
// before their tokens can be minted.
package storage

import (
	"context"
	"errors"

	"github.com/nutmint/nutmint/cashu"
)

// ErrProofAlreadyUsed is returned by AddUsedProofs when any proof in the
// batch (by secret) is already present. The whole batch is rejected: no
// partial set of proofs from a single spend is ever recorded.
var ErrProofAlreadyUsed = errors.New("proof already used")

// ErrPendingInvoiceNotFound is returned by GetPendingInvoice and
// DeletePendingInvoice when no invoice is stored under the given key.
var ErrPendingInvoiceNotFound = errors.New("pending invoice not found")

// PendingInvoice is a Lightning invoice the mint has created and is
// waiting to see paid before it will sign blinded messages against it.
// MintKey is the opaque value the caller must present back to mint_tokens;
// it is independent of the invoice's own payment hash.
type PendingInvoice struct {
	MintKey        string
	PaymentRequest string
	PaymentHash    string
	Amount         uint64
	Expiry         uint64
}

// Database is the persistence contract every mint core operation relies
// on. Implementations provide their own atomicity for AddUsedProofs (a
// unique index plus a single transaction, or equivalent) — the mint core
// never takes a lock around a storage call.
type Database interface {
	// AddUsedProofs records the given proofs as spent. If any of them is
	// already recorded, none are: the call fails with ErrProofAlreadyUsed
	// and the store is left unchanged.
	AddUsedProofs(proofs cashu.Proofs) error

	// GetUsedProofs returns the subset of the given secrets that are
	// already recorded as spent. The result is a point-in-time snapshot;
	// callers needing exclusion must still go through AddUsedProofs.
	GetUsedProofs(secrets []string) (cashu.Proofs, error)

	AddPendingInvoice(invoice PendingInvoice) error
	GetPendingInvoice(mintKey string) (PendingInvoice, error)
	DeletePendingInvoice(mintKey string) error

	// Migrate brings the backing store's schema up to date. It must be
	// idempotent: calling it against an already-current store is a no-op.
	Migrate(ctx context.Context) error

	Close() error
}
