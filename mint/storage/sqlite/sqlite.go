// Package sqlite implements the mint's storage contract on top of
// SQLite, with schema migrations applied from embedded SQL files.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nutmint/nutmint/cashu"
	"github.com/nutmint/nutmint/mint/storage"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrations embed.FS

type SQLiteDB struct {
	db   *sql.DB
	path string
}

// migrationsDir copies the embedded migration files out to a temp
// directory, since golang-migrate's file source needs a real filesystem
// path and go:embed only gives us an fs.FS.
func migrationsDir() (string, error) {
	tempDir, err := os.MkdirTemp("", "migrations")
	if err != nil {
		return "", err
	}

	migrationFiles, err := migrations.ReadDir("migrations")
	if err != nil {
		return "", err
	}

	for _, file := range migrationFiles {
		filePath := filepath.Join(tempDir, file.Name())

		migrationFilePath := filepath.Join("migrations", file.Name())
		migrationFile, err := migrations.Open(migrationFilePath)
		if err != nil {
			return "", err
		}

		destFile, err := os.Create(filePath)
		if err != nil {
			migrationFile.Close()
			return "", err
		}

		_, err = io.Copy(destFile, migrationFile)
		migrationFile.Close()
		destFile.Close()
		if err != nil {
			return "", err
		}
	}

	return tempDir, nil
}

func Open(path string) (*SQLiteDB, error) {
	dbpath := filepath.Join(path, "mint.sqlite.db")
	db, err := sql.Open("sqlite3", dbpath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	sqliteDB := &SQLiteDB{db: db, path: dbpath}
	if err := sqliteDB.Migrate(context.Background()); err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return sqliteDB, nil
}

func (sqlite *SQLiteDB) Migrate(_ context.Context) error {
	tempMigrationsDir, err := migrationsDir()
	if err != nil {
		return err
	}
	defer os.RemoveAll(tempMigrationsDir)

	m, err := migrate.New(fmt.Sprintf("file://%s", tempMigrationsDir), fmt.Sprintf("sqlite3://%s", sqlite.path))
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (sqlite *SQLiteDB) Close() error {
	return sqlite.db.Close()
}

// AddUsedProofs inserts every proof in a single transaction; the
// secret PRIMARY KEY enforces uniqueness, so a conflicting insert aborts
// the whole transaction and no partial batch is ever committed.
func (sqlite *SQLiteDB) AddUsedProofs(proofs cashu.Proofs) error {
	tx, err := sqlite.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, proof := range proofs {
		var exists int
		row := tx.QueryRow("SELECT 1 FROM used_proofs WHERE secret = ?", proof.Secret)
		if err := row.Scan(&exists); err == nil {
			return storage.ErrProofAlreadyUsed
		} else if err != sql.ErrNoRows {
			return err
		}
	}

	for _, proof := range proofs {
		_, err := tx.Exec(
			"INSERT INTO used_proofs (secret, amount, keyset_id, c) VALUES (?, ?, ?, ?)",
			proof.Secret, proof.Amount, proof.Id, proof.C,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (sqlite *SQLiteDB) GetUsedProofs(secrets []string) (cashu.Proofs, error) {
	var used cashu.Proofs

	for _, secret := range secrets {
		row := sqlite.db.QueryRow(
			"SELECT amount, keyset_id, secret, c FROM used_proofs WHERE secret = ?", secret,
		)

		var proof cashu.Proof
		err := row.Scan(&proof.Amount, &proof.Id, &proof.Secret, &proof.C)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		used = append(used, proof)
	}

	return used, nil
}

func (sqlite *SQLiteDB) AddPendingInvoice(invoice storage.PendingInvoice) error {
	_, err := sqlite.db.Exec(
		`INSERT INTO pending_invoices (mint_key, payment_request, payment_hash, amount, expiry)
		 VALUES (?, ?, ?, ?, ?)`,
		invoice.MintKey, invoice.PaymentRequest, invoice.PaymentHash, invoice.Amount, invoice.Expiry,
	)
	return err
}

func (sqlite *SQLiteDB) GetPendingInvoice(mintKey string) (storage.PendingInvoice, error) {
	var invoice storage.PendingInvoice
	row := sqlite.db.QueryRow(
		"SELECT mint_key, payment_request, payment_hash, amount, expiry FROM pending_invoices WHERE mint_key = ?",
		mintKey,
	)

	err := row.Scan(&invoice.MintKey, &invoice.PaymentRequest, &invoice.PaymentHash, &invoice.Amount, &invoice.Expiry)
	if err == sql.ErrNoRows {
		return storage.PendingInvoice{}, storage.ErrPendingInvoiceNotFound
	}
	return invoice, err
}

func (sqlite *SQLiteDB) DeletePendingInvoice(mintKey string) error {
	result, err := sqlite.db.Exec("DELETE FROM pending_invoices WHERE mint_key = ?", mintKey)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.ErrPendingInvoiceNotFound
	}
	return nil
}
