package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/storage/pgtx"
)

const (
	defaultAccountsTable = "escrow_accounts"
	defaultEntriesTable  = "escrow_entries"
)

// AccountRepository persists escrow accounts and their entries.
type AccountRepository struct {
	db            *sql.DB
	accountsTable string
	entriesTable  string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*AccountRepository)

// WithAccountsTable overrides the accounts table.
func WithAccountsTable(table string) RepositoryOption {
	return func(r *AccountRepository) {
		if table != "" {
			r.accountsTable = table
		}
	}
}

// WithEntriesTable overrides the entries table.
func WithEntriesTable(table string) RepositoryOption {
	return func(r *AccountRepository) {
		if table != "" {
			r.entriesTable = table
		}
	}
}

// NewAccountRepository constructs a repository with defaults.
func NewAccountRepository(db *sql.DB, opts ...RepositoryOption) *AccountRepository {
	repo := &AccountRepository{
		db:            db,
		accountsTable: defaultAccountsTable,
		entriesTable:  defaultEntriesTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Save inserts or version-checks and updates the account, then appends its
// pending entries. A duplicate funding reference surfaces as ErrDuplicateTransaction.
func (r *AccountRepository) Save(ctx context.Context, account *escrow.Account) error {
	if r == nil || r.db == nil {
		return errors.New("escrow repo: nil db")
	}
	if account == nil {
		return errors.New("escrow repo: nil account")
	}
	snap := account.Snapshot()

	insert := fmt.Sprintf(`
INSERT INTO %s (
	id, sub_order_id, total_amount, held_amount, released_amount, refunded_amount,
	status, previous_status, dispute_reason, version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,$10,$11)`, r.accountsTable)
	update := fmt.Sprintf(`
UPDATE %s SET
	held_amount = $2,
	released_amount = $3,
	refunded_amount = $4,
	status = $5,
	previous_status = $6,
	dispute_reason = $7,
	version = version + 1,
	updated_at = $8
WHERE id = $1 AND version = $9`, r.accountsTable)
	insertEntry := fmt.Sprintf(`
INSERT INTO %s (
	id, account_id, kind, amount, recipient_type, recipient_id, reference, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, r.entriesTable)

	err := pgtx.Run(ctx, r.db, func(tx *sql.Tx) error {
		if account.IsNew() {
			_, err := tx.ExecContext(ctx, insert,
				snap.ID, snap.SubOrderID, snap.Total, snap.Held, snap.Released, snap.Refunded,
				string(snap.Status), string(snap.PreviousStatus), snap.DisputeReason,
				snap.CreatedAt.UTC(), snap.UpdatedAt.UTC())
			if pgtx.IsUniqueViolation(err) {
				return fmt.Errorf("escrow repo: sub-order %s: %w", snap.SubOrderID, escrow.ErrAccountExists)
			}
			if err != nil {
				return err
			}
		} else {
			result, err := tx.ExecContext(ctx, update,
				snap.ID, snap.Held, snap.Released, snap.Refunded,
				string(snap.Status), string(snap.PreviousStatus), snap.DisputeReason,
				snap.UpdatedAt.UTC(), snap.Version)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("escrow repo: account %s version %d: %w", snap.ID, snap.Version, kernel.ErrResourceContention)
			}
		}
		for _, entry := range account.PendingEntries() {
			_, err := tx.ExecContext(ctx, insertEntry,
				entry.ID, entry.AccountID, string(entry.Kind), entry.Amount,
				nullString(string(entry.RecipientType)), nullString(entry.RecipientID),
				nullString(entry.Reference), entry.CreatedAt.UTC())
			if pgtx.IsUniqueViolation(err) {
				return fmt.Errorf("escrow repo: account %s reference %s: %w", entry.AccountID, entry.Reference, kernel.ErrDuplicateTransaction)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	account.MarkPersisted()
	return nil
}

// Get loads an account with its entries.
func (r *AccountRepository) Get(ctx context.Context, id string) (*escrow.Account, error) {
	return r.load(ctx, "id", id)
}

// GetBySubOrder loads the account of a sub-order.
func (r *AccountRepository) GetBySubOrder(ctx context.Context, subOrderID string) (*escrow.Account, error) {
	return r.load(ctx, "sub_order_id", subOrderID)
}

func (r *AccountRepository) load(ctx context.Context, column, value string) (*escrow.Account, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("escrow repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, sub_order_id, total_amount, held_amount, released_amount, refunded_amount,
	status, previous_status, dispute_reason, version, created_at, updated_at
FROM %s
WHERE %s = $1
LIMIT 1`, r.accountsTable, column)

	var snap escrow.Snapshot
	var status, previous string
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&snap.ID, &snap.SubOrderID, &snap.Total, &snap.Held, &snap.Released, &snap.Refunded,
		&status, &previous, &snap.DisputeReason, &snap.Version, &snap.CreatedAt, &snap.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	snap.Status = escrow.Status(status)
	snap.PreviousStatus = escrow.Status(previous)
	snap.Entries, err = r.entries(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	return escrow.RestoreAccount(snap)
}

func (r *AccountRepository) entries(ctx context.Context, accountID string) ([]escrow.Entry, error) {
	query := fmt.Sprintf(`
SELECT id, account_id, kind, amount, recipient_type, recipient_id, reference, created_at
FROM %s
WHERE account_id = $1
ORDER BY created_at ASC, id ASC`, r.entriesTable)
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []escrow.Entry
	for rows.Next() {
		var (
			entry                                 escrow.Entry
			kind                                  string
			amount                                decimal.Decimal
			recipientType, recipientID, reference sql.NullString
			createdAt                             time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.AccountID, &kind, &amount,
			&recipientType, &recipientID, &reference, &createdAt); err != nil {
			return nil, err
		}
		entry.Kind = escrow.EntryKind(kind)
		entry.Amount = amount
		entry.RecipientType = escrow.RecipientType(recipientType.String)
		entry.RecipientID = recipientID.String
		entry.Reference = reference.String
		entry.CreatedAt = createdAt.UTC()
		result = append(result, entry)
	}
	return result, rows.Err()
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
