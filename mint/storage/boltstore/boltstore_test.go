package boltstore

import (
	"sync"
	"testing"

	"github.com/nutmint/nutmint/cashu"
	"github.com/nutmint/nutmint/mint/storage"
)

func openTestDB(t *testing.T) *BoltDB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAddUsedProofsAllOrNothing(t *testing.T) {
	db := openTestDB(t)

	proofs := cashu.Proofs{
		{Amount: 1, Id: "00", Secret: "secret-1", C: "c1"},
		{Amount: 2, Id: "00", Secret: "secret-2", C: "c2"},
	}
	if err := db.AddUsedProofs(proofs); err != nil {
		t.Fatalf("AddUsedProofs: %v", err)
	}

	// second spend overlapping one secret must fail and leave the new
	// secret out entirely
	overlapping := cashu.Proofs{
		{Amount: 1, Id: "00", Secret: "secret-2", C: "c2"},
		{Amount: 4, Id: "00", Secret: "secret-3", C: "c3"},
	}
	if err := db.AddUsedProofs(overlapping); err != storage.ErrProofAlreadyUsed {
		t.Fatalf("expected ErrProofAlreadyUsed, got %v", err)
	}

	used, err := db.GetUsedProofs([]string{"secret-1", "secret-2", "secret-3"})
	if err != nil {
		t.Fatalf("GetUsedProofs: %v", err)
	}
	if len(used) != 2 {
		t.Fatalf("expected secret-3 to not be recorded, got %v used proofs", len(used))
	}
}

func TestAddUsedProofsConcurrentSpendsSerialize(t *testing.T) {
	db := openTestDB(t)

	proofs := cashu.Proofs{{Amount: 1, Id: "00", Secret: "shared-secret", C: "c"}}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = db.AddUsedProofs(proofs)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if err != storage.ErrProofAlreadyUsed {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one concurrent spend to succeed, got %v", successes)
	}
}

func TestPendingInvoiceLifecycle(t *testing.T) {
	db := openTestDB(t)

	inv := storage.PendingInvoice{MintKey: "key-1", PaymentRequest: "lnbc1...", Amount: 100}
	if err := db.AddPendingInvoice(inv); err != nil {
		t.Fatalf("AddPendingInvoice: %v", err)
	}

	got, err := db.GetPendingInvoice("key-1")
	if err != nil {
		t.Fatalf("GetPendingInvoice: %v", err)
	}
	if got.PaymentRequest != inv.PaymentRequest || got.Amount != inv.Amount {
		t.Fatalf("got %+v, want %+v", got, inv)
	}

	if err := db.DeletePendingInvoice("key-1"); err != nil {
		t.Fatalf("DeletePendingInvoice: %v", err)
	}

	if _, err := db.GetPendingInvoice("key-1"); err != storage.ErrPendingInvoiceNotFound {
		t.Fatalf("expected ErrPendingInvoiceNotFound, got %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(nil); err != nil {
		t.Fatalf("second Migrate call should be a no-op, got %v", err)
	}
}
