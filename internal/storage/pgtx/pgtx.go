// Package pgtx runs per-aggregate Postgres transactions and maps transient
// Postgres failures onto kernel.ErrResourceContention.
package pgtx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"marketplace-settlement/internal/kernel"
)

// SQLSTATE codes that are safe to retry.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// Run executes fn inside a serializable transaction. The transaction is rolled
// back when fn or commit fails.
func Run(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	if db == nil {
		return errors.New("pgtx: nil db")
	}
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return Classify(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return Classify(err)
	}
	if err := tx.Commit(); err != nil {
		return Classify(err)
	}
	return nil
}

// Classify wraps retryable Postgres errors with kernel.ErrResourceContention.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kernel.ErrResourceContention) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s", kernel.ErrResourceContention, pgErr.Message)
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
