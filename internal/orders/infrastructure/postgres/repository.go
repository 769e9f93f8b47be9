package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"marketplace-settlement/internal/kernel"
	orders "marketplace-settlement/internal/orders/domain"
	"marketplace-settlement/internal/pricing"
)

const (
	defaultOrdersTable    = "parent_orders"
	defaultSubOrdersTable = "sub_orders"
)

// Repository persists parent orders and sub-orders.
type Repository struct {
	db             *sql.DB
	ordersTable    string
	subOrdersTable string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithOrdersTable overrides the parent orders table.
func WithOrdersTable(table string) RepositoryOption {
	return func(r *Repository) {
		if table != "" {
			r.ordersTable = table
		}
	}
}

// WithSubOrdersTable overrides the sub-orders table.
func WithSubOrdersTable(table string) RepositoryOption {
	return func(r *Repository) {
		if table != "" {
			r.subOrdersTable = table
		}
	}
}

// NewRepository constructs a repository with defaults.
func NewRepository(db *sql.DB, opts ...RepositoryOption) *Repository {
	repo := &Repository{
		db:             db,
		ordersTable:    defaultOrdersTable,
		subOrdersTable: defaultSubOrdersTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// SaveOrder upserts a parent order.
func (r *Repository) SaveOrder(ctx context.Context, order *orders.Order) error {
	if r == nil || r.db == nil {
		return errors.New("orders repo: nil db")
	}
	if order == nil {
		return orders.ErrNilAggregate
	}
	ids, err := json.Marshal(order.SubOrderIDs)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, buyer_id, sub_order_ids, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET sub_order_ids = EXCLUDED.sub_order_ids`, r.ordersTable)
	_, err = r.db.ExecContext(ctx, query, order.ID, order.BuyerID, ids, order.CreatedAt.UTC())
	return err
}

// FindOrder loads a parent order.
func (r *Repository) FindOrder(ctx context.Context, id string) (*orders.Order, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("orders repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, buyer_id, sub_order_ids, created_at
FROM %s
WHERE id = $1
LIMIT 1`, r.ordersTable)
	var order orders.Order
	var ids []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&order.ID, &order.BuyerID, &ids, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(ids, &order.SubOrderIDs); err != nil {
		return nil, fmt.Errorf("orders repo: decode sub-order ids: %w", err)
	}
	return &order, nil
}

// SaveSubOrder inserts a new sub-order or updates it when the stored version matches.
func (r *Repository) SaveSubOrder(ctx context.Context, sub *orders.SubOrder) error {
	if r == nil || r.db == nil {
		return errors.New("orders repo: nil db")
	}
	if sub == nil {
		return orders.ErrNilAggregate
	}
	snap := sub.Snapshot()
	lines, err := json.Marshal(snap.Lines)
	if err != nil {
		return err
	}

	if sub.IsNew() {
		query := fmt.Sprintf(`
INSERT INTO %s (
	id, parent_order_id, buyer_id, vendor_id, lines,
	payment_type, months, fee_rate, subtotal, shipping, tax, installment_fee, total, monthly,
	escrow_account_id, status, version, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,1,$17,$18
)`, r.subOrdersTable)
		p := snap.Price
		_, err = r.db.ExecContext(ctx, query,
			snap.ID, snap.ParentID, snap.BuyerID, snap.VendorID, lines,
			string(p.PaymentType), p.Months, p.FeeRate, p.Subtotal, p.Shipping, p.Tax, p.InstallmentFee, p.Total, p.Monthly,
			snap.EscrowAccountID, string(snap.Status), snap.CreatedAt.UTC(), snap.UpdatedAt.UTC())
		if err != nil {
			return err
		}
		sub.MarkPersisted()
		return nil
	}

	query := fmt.Sprintf(`
UPDATE %s SET
	escrow_account_id = $2,
	status = $3,
	version = version + 1,
	updated_at = $4
WHERE id = $1 AND version = $5`, r.subOrdersTable)
	result, err := r.db.ExecContext(ctx, query, snap.ID, snap.EscrowAccountID, string(snap.Status), snap.UpdatedAt.UTC(), snap.Version)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("orders repo: sub-order %s: %w: %w", snap.ID, orders.ErrVersionConflict, kernel.ErrResourceContention)
	}
	sub.MarkPersisted()
	return nil
}

const subOrderColumns = `id, parent_order_id, buyer_id, vendor_id, lines,
	payment_type, months, fee_rate, subtotal, shipping, tax, installment_fee, total, monthly,
	escrow_account_id, status, version, created_at, updated_at`

// FindSubOrder loads a sub-order.
func (r *Repository) FindSubOrder(ctx context.Context, id string) (*orders.SubOrder, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("orders repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 LIMIT 1`, subOrderColumns, r.subOrdersTable)
	sub, err := scanSubOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// ListSubOrders returns the sub-orders of a parent order.
func (r *Repository) ListSubOrders(ctx context.Context, parentID string) ([]*orders.SubOrder, error) {
	return r.list(ctx, "parent_order_id", parentID)
}

// ListByVendor returns every sub-order of a vendor.
func (r *Repository) ListByVendor(ctx context.Context, vendorID string) ([]*orders.SubOrder, error) {
	return r.list(ctx, "vendor_id", vendorID)
}

func (r *Repository) list(ctx context.Context, column, value string) ([]*orders.SubOrder, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("orders repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY created_at ASC, id ASC`,
		subOrderColumns, r.subOrdersTable, column)
	rows, err := r.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*orders.SubOrder
	for rows.Next() {
		sub, err := scanSubOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubOrder(row rowScanner) (*orders.SubOrder, error) {
	var (
		snap                orders.Snapshot
		lines               []byte
		paymentType, status string
		escrowID            sql.NullString
		price               pricing.Breakdown
	)
	if err := row.Scan(
		&snap.ID, &snap.ParentID, &snap.BuyerID, &snap.VendorID, &lines,
		&paymentType, &price.Months, &price.FeeRate, &price.Subtotal, &price.Shipping, &price.Tax,
		&price.InstallmentFee, &price.Total, &price.Monthly,
		&escrowID, &status, &snap.Version, &snap.CreatedAt, &snap.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &snap.Lines); err != nil {
		return nil, fmt.Errorf("orders repo: decode lines: %w", err)
	}
	price.PaymentType = pricing.PaymentType(paymentType)
	snap.Price = price
	snap.EscrowAccountID = escrowID.String
	snap.Status = orders.Status(status)
	return orders.RestoreSubOrder(snap)
}
