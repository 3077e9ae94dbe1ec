// Package boltstore implements the mint's storage contract on top of an
// embedded bbolt key-value store: no separate server process, a single
// file on disk, single-writer transactions.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nutmint/nutmint/cashu"
	"github.com/nutmint/nutmint/mint/storage"
	bolt "go.etcd.io/bbolt"
)

const (
	usedProofsBucket     = "used_proofs"
	pendingInvoiceBucket = "pending_invoices"
)

type BoltDB struct {
	bolt *bolt.DB
}

func Open(dir string) (*BoltDB, error) {
	db, err := bolt.Open(filepath.Join(dir, "mint.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("error opening bolt db: %v", err)
	}

	boltdb := &BoltDB{bolt: db}
	if err := boltdb.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("error setting up bolt db: %v", err)
	}

	return boltdb, nil
}

// Migrate creates the buckets used_proofs and pending_invoices if they do
// not yet exist. CreateBucketIfNotExists makes every call a no-op against
// an already-initialized store.
func (db *BoltDB) Migrate(_ context.Context) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(usedProofsBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(pendingInvoiceBucket)); err != nil {
			return err
		}
		return nil
	})
}

// AddUsedProofs records the proofs as spent inside a single bbolt Update
// transaction. bbolt serializes all writers, so this check-then-insert is
// atomic with respect to any other concurrent AddUsedProofs call: one of
// two conflicting spends always observes the other's proof already there
// and aborts before committing.
func (db *BoltDB) AddUsedProofs(proofs cashu.Proofs) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(usedProofsBucket))

		for _, proof := range proofs {
			if b.Get([]byte(proof.Secret)) != nil {
				return storage.ErrProofAlreadyUsed
			}
		}

		for _, proof := range proofs {
			jsonProof, err := json.Marshal(proof)
			if err != nil {
				return fmt.Errorf("invalid proof: %v", err)
			}
			if err := b.Put([]byte(proof.Secret), jsonProof); err != nil {
				return err
			}
		}

		return nil
	})
}

func (db *BoltDB) GetUsedProofs(secrets []string) (cashu.Proofs, error) {
	var used cashu.Proofs

	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(usedProofsBucket))

		for _, secret := range secrets {
			data := b.Get([]byte(secret))
			if data == nil {
				continue
			}

			var proof cashu.Proof
			if err := json.Unmarshal(data, &proof); err != nil {
				return fmt.Errorf("corrupt proof record for secret %v: %v", secret, err)
			}
			used = append(used, proof)
		}

		return nil
	})

	return used, err
}

func (db *BoltDB) AddPendingInvoice(invoice storage.PendingInvoice) error {
	jsonInvoice, err := json.Marshal(invoice)
	if err != nil {
		return fmt.Errorf("invalid invoice: %v", err)
	}

	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingInvoiceBucket))
		return b.Put([]byte(invoice.MintKey), jsonInvoice)
	})
}

func (db *BoltDB) GetPendingInvoice(mintKey string) (storage.PendingInvoice, error) {
	var invoice storage.PendingInvoice

	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingInvoiceBucket))
		data := b.Get([]byte(mintKey))
		if data == nil {
			return storage.ErrPendingInvoiceNotFound
		}
		return json.Unmarshal(data, &invoice)
	})

	return invoice, err
}

func (db *BoltDB) DeletePendingInvoice(mintKey string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingInvoiceBucket))
		if b.Get([]byte(mintKey)) == nil {
			return storage.ErrPendingInvoiceNotFound
		}
		return b.Delete([]byte(mintKey))
	})
}

func (db *BoltDB) Close() error {
	return db.bolt.Close()
}
