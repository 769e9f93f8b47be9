package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	reporting "marketplace-settlement/internal/reporting/domain"
)

const (
	defaultEntriesTable   = "escrow_entries"
	defaultAccountsTable  = "escrow_accounts"
	defaultSubOrdersTable = "sub_orders"
)

// ReleaseSource reads vendor releases by joining escrow entries to sub-orders.
type ReleaseSource struct {
	db             *sql.DB
	entriesTable   string
	accountsTable  string
	subOrdersTable string
}

// ReleaseSourceOption configures the source.
type ReleaseSourceOption func(*ReleaseSource)

// WithTables overrides the joined tables. Empty names keep the defaults.
func WithTables(entries, accounts, subOrders string) ReleaseSourceOption {
	return func(s *ReleaseSource) {
		if entries != "" {
			s.entriesTable = entries
		}
		if accounts != "" {
			s.accountsTable = accounts
		}
		if subOrders != "" {
			s.subOrdersTable = subOrders
		}
	}
}

// NewReleaseSource constructs a source.
func NewReleaseSource(db *sql.DB, opts ...ReleaseSourceOption) *ReleaseSource {
	s := &ReleaseSource{
		db:             db,
		entriesTable:   defaultEntriesTable,
		accountsTable:  defaultAccountsTable,
		subOrdersTable: defaultSubOrdersTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VendorReleases lists release entries of the vendor's sub-orders inside period.
func (s *ReleaseSource) VendorReleases(ctx context.Context, vendorID string, period reporting.Period) ([]reporting.Release, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("release source: nil db")
	}
	query := fmt.Sprintf(`
SELECT e.id, a.sub_order_id, e.account_id, COALESCE(e.recipient_type, ''), COALESCE(e.recipient_id, ''),
	e.amount, e.created_at
FROM %s e
JOIN %s a ON a.id = e.account_id
JOIN %s s ON s.id = a.sub_order_id
WHERE s.vendor_id = $1 AND e.kind = 'release' AND e.created_at >= $2 AND e.created_at < $3
ORDER BY e.created_at ASC, e.id ASC`, s.entriesTable, s.accountsTable, s.subOrdersTable)

	rows, err := s.db.QueryContext(ctx, query, vendorID, period.From.UTC(), period.To.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reporting.Release
	for rows.Next() {
		var (
			r      reporting.Release
			amount decimal.Decimal
			at     time.Time
		)
		if err := rows.Scan(&r.EntryID, &r.SubOrderID, &r.AccountID, &r.RecipientType, &r.RecipientID, &amount, &at); err != nil {
			return nil, err
		}
		r.Amount = amount
		r.ReleasedAt = at.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
