package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	inventory "marketplace-settlement/internal/inventory/domain"
	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/storage/pgtx"
)

const (
	defaultItemsTable        = "inventory_items"
	defaultReservationsTable = "inventory_reservations"
)

// Store is a Postgres implementation of the inventory store.
type Store struct {
	db                *sql.DB
	itemsTable        string
	reservationsTable string
}

// NewStore constructs a store with defaults.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	store := &Store{
		db:                db,
		itemsTable:        defaultItemsTable,
		reservationsTable: defaultReservationsTable,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithItemsTable overrides the items table.
func WithItemsTable(table string) StoreOption {
	return func(store *Store) {
		if table != "" {
			store.itemsTable = table
		}
	}
}

// WithReservationsTable overrides the reservations table.
func WithReservationsTable(table string) StoreOption {
	return func(store *Store) {
		if table != "" {
			store.reservationsTable = table
		}
	}
}

// Reserve applies the guarded increment and records the reservation in one transaction.
func (s *Store) Reserve(ctx context.Context, reservation inventory.Reservation) error {
	if s == nil || s.db == nil {
		return errors.New("inventory store: nil db")
	}
	if reservation.ProductID == "" {
		return inventory.ErrEmptyProductID
	}
	if reservation.Quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}

	reserve := fmt.Sprintf(`
UPDATE %s
SET reserved = reserved + $1, updated_at = NOW()
WHERE product_id = $2 AND on_hand - reserved >= $1`, s.itemsTable)
	insert := fmt.Sprintf(`
INSERT INTO %s (
	id,
	product_id,
	sub_order_id,
	quantity,
	status,
	expires_at,
	created_at,
	updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $7
)`, s.reservationsTable)

	return pgtx.Run(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, reserve, reservation.Quantity, reservation.ProductID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("inventory: product %s: %w", reservation.ProductID, kernel.ErrInsufficientStock)
		}
		_, err = tx.ExecContext(ctx, insert,
			reservation.ID,
			reservation.ProductID,
			reservation.SubOrderID,
			reservation.Quantity,
			string(reservation.Status),
			reservation.ExpiresAt.UTC(),
			reservation.CreatedAt.UTC(),
		)
		return err
	})
}

// Release returns an active reservation's quantity to the pool. changed is
// true only for the call whose guarded update moved the row off active.
func (s *Store) Release(ctx context.Context, reservationID string, status inventory.ReservationStatus, at time.Time) (inventory.Reservation, bool, error) {
	if s == nil || s.db == nil {
		return inventory.Reservation{}, false, errors.New("inventory store: nil db")
	}
	if status != inventory.ReservationReleased && status != inventory.ReservationExpired {
		return inventory.Reservation{}, false, fmt.Errorf("inventory: release as %s: %w", status, kernel.ErrInvalidStateTransition)
	}
	adjust := fmt.Sprintf(`
UPDATE %s
SET reserved = reserved - $1, updated_at = NOW()
WHERE product_id = $2`, s.itemsTable)
	return s.finish(ctx, reservationID, status, at, adjust)
}

// Commit converts an active reservation into a permanent stock decrement.
func (s *Store) Commit(ctx context.Context, reservationID string, at time.Time) (inventory.Reservation, error) {
	if s == nil || s.db == nil {
		return inventory.Reservation{}, errors.New("inventory store: nil db")
	}
	adjust := fmt.Sprintf(`
UPDATE %s
SET reserved = reserved - $1, on_hand = on_hand - $1, updated_at = NOW()
WHERE product_id = $2`, s.itemsTable)
	res, _, err := s.finish(ctx, reservationID, inventory.ReservationCommitted, at, adjust)
	return res, err
}

func (s *Store) finish(ctx context.Context, reservationID string, status inventory.ReservationStatus, at time.Time, adjust string) (inventory.Reservation, bool, error) {
	transition := fmt.Sprintf(`
UPDATE %s
SET status = $1, updated_at = $2
WHERE id = $3 AND status = 'active'
RETURNING id, product_id, sub_order_id, quantity, status, expires_at, created_at, updated_at`, s.reservationsTable)

	var res inventory.Reservation
	var changed bool
	err := pgtx.Run(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, transition, string(status), at.UTC(), reservationID)
		scanned, err := scanReservation(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		res = scanned
		changed = true
		_, err = tx.ExecContext(ctx, adjust, res.Quantity, res.ProductID)
		return err
	})
	if err != nil {
		return inventory.Reservation{}, false, err
	}
	if changed {
		return res, true, nil
	}

	current, err := s.Get(ctx, reservationID)
	if err != nil {
		return inventory.Reservation{}, false, err
	}
	if current == nil {
		return inventory.Reservation{}, false, inventory.ErrReservationNotFound
	}
	if status == inventory.ReservationCommitted && current.Status != inventory.ReservationCommitted {
		return *current, false, fmt.Errorf("inventory: reservation %s %s -> %s: %w", current.ID, current.Status, status, kernel.ErrInvalidStateTransition)
	}
	return *current, false, nil
}

// Get loads a reservation.
func (s *Store) Get(ctx context.Context, reservationID string) (*inventory.Reservation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("inventory store: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, product_id, sub_order_id, quantity, status, expires_at, created_at, updated_at
FROM %s
WHERE id = $1`, s.reservationsTable)
	res, err := scanReservation(s.db.QueryRowContext(ctx, query, reservationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListBySubOrder returns reservations owned by a sub-order.
func (s *Store) ListBySubOrder(ctx context.Context, subOrderID string) ([]inventory.Reservation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("inventory store: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, product_id, sub_order_id, quantity, status, expires_at, created_at, updated_at
FROM %s
WHERE sub_order_id = $1
ORDER BY created_at ASC, id ASC`, s.reservationsTable)
	return s.list(ctx, query, subOrderID)
}

// ListExpired returns active reservations past their expiry.
func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]inventory.Reservation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("inventory store: nil db")
	}
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`
SELECT id, product_id, sub_order_id, quantity, status, expires_at, created_at, updated_at
FROM %s
WHERE status = 'active' AND expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`, s.reservationsTable)
	return s.list(ctx, query, now.UTC(), limit)
}

// GetItem returns the stock position of a product.
func (s *Store) GetItem(ctx context.Context, productID string) (*inventory.Item, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("inventory store: nil db")
	}
	query := fmt.Sprintf(`
SELECT product_id, on_hand, reserved
FROM %s
WHERE product_id = $1`, s.itemsTable)
	var item inventory.Item
	err := s.db.QueryRowContext(ctx, query, productID).Scan(&item.ProductID, &item.OnHand, &item.Reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SetOnHand upserts on-hand stock; the update is guarded so it never drops
// below the reserved quantity.
func (s *Store) SetOnHand(ctx context.Context, productID string, onHand int) error {
	if s == nil || s.db == nil {
		return errors.New("inventory store: nil db")
	}
	if productID == "" {
		return inventory.ErrEmptyProductID
	}
	if onHand < 0 {
		return inventory.ErrInvalidQuantity
	}
	query := fmt.Sprintf(`
INSERT INTO %s (product_id, on_hand, reserved, updated_at)
VALUES ($1, $2, 0, NOW())
ON CONFLICT (product_id)
DO UPDATE SET
	on_hand = EXCLUDED.on_hand,
	updated_at = NOW()
WHERE %s.reserved <= EXCLUDED.on_hand`, s.itemsTable, s.itemsTable)
	result, err := s.db.ExecContext(ctx, query, productID, onHand)
	if err != nil {
		return pgtx.Classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return inventory.ErrStockBelowReserved
	}
	return nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]inventory.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (inventory.Reservation, error) {
	var res inventory.Reservation
	var status string
	if err := row.Scan(
		&res.ID,
		&res.ProductID,
		&res.SubOrderID,
		&res.Quantity,
		&status,
		&res.ExpiresAt,
		&res.CreatedAt,
		&res.UpdatedAt,
	); err != nil {
		return inventory.Reservation{}, err
	}
	res.Status = inventory.ReservationStatus(status)
	return res, nil
}
