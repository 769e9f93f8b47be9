package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	inventory "marketplace-settlement/internal/inventory/domain"
	"marketplace-settlement/internal/kernel"
)

// Store is an in-memory inventory store. A single mutex makes every
// reserve/release/commit a compare-and-set on the item.
type Store struct {
	mu           sync.Mutex
	items        map[string]*inventory.Item
	reservations map[string]*inventory.Reservation
}

// NewStore constructs a store.
func NewStore() *Store {
	return &Store{
		items:        make(map[string]*inventory.Item),
		reservations: make(map[string]*inventory.Reservation),
	}
}

// Reserve increments reserved when enough stock is available.
func (s *Store) Reserve(ctx context.Context, reservation inventory.Reservation) error {
	_ = ctx
	if reservation.ProductID == "" {
		return inventory.ErrEmptyProductID
	}
	if reservation.Quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.items[reservation.ProductID]
	if item == nil || item.OnHand-item.Reserved < reservation.Quantity {
		return fmt.Errorf("inventory: product %s: %w", reservation.ProductID, kernel.ErrInsufficientStock)
	}
	item.Reserved += reservation.Quantity
	stored := reservation
	s.reservations[reservation.ID] = &stored
	return nil
}

// Release returns an active reservation's quantity to the pool. changed
// reports whether this call moved it off active.
func (s *Store) Release(ctx context.Context, reservationID string, status inventory.ReservationStatus, at time.Time) (inventory.Reservation, bool, error) {
	_ = ctx
	if status != inventory.ReservationReleased && status != inventory.ReservationExpired {
		return inventory.Reservation{}, false, fmt.Errorf("inventory: release as %s: %w", status, kernel.ErrInvalidStateTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.reservations[reservationID]
	if res == nil {
		return inventory.Reservation{}, false, inventory.ErrReservationNotFound
	}
	if !res.Active() {
		return *res, false, nil
	}
	if err := res.Transition(status, at); err != nil {
		return *res, false, err
	}
	if item := s.items[res.ProductID]; item != nil {
		item.Reserved -= res.Quantity
	}
	return *res, true, nil
}

// Commit converts an active reservation into a permanent decrement.
func (s *Store) Commit(ctx context.Context, reservationID string, at time.Time) (inventory.Reservation, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.reservations[reservationID]
	if res == nil {
		return inventory.Reservation{}, inventory.ErrReservationNotFound
	}
	if res.Status == inventory.ReservationCommitted {
		return *res, nil
	}
	if err := res.Transition(inventory.ReservationCommitted, at); err != nil {
		return *res, err
	}
	if item := s.items[res.ProductID]; item != nil {
		item.Reserved -= res.Quantity
		item.OnHand -= res.Quantity
	}
	return *res, nil
}

// Get loads a reservation.
func (s *Store) Get(ctx context.Context, reservationID string) (*inventory.Reservation, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.reservations[reservationID]
	if res == nil {
		return nil, nil
	}
	clone := *res
	return &clone, nil
}

// ListBySubOrder returns reservations owned by a sub-order.
func (s *Store) ListBySubOrder(ctx context.Context, subOrderID string) ([]inventory.Reservation, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []inventory.Reservation
	for _, res := range s.reservations {
		if res.SubOrderID == subOrderID {
			result = append(result, *res)
		}
	}
	sortReservations(result)
	return result, nil
}

// ListExpired returns active reservations past their expiry.
func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]inventory.Reservation, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []inventory.Reservation
	for _, res := range s.reservations {
		if res.Expired(now) {
			result = append(result, *res)
		}
	}
	sortReservations(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetItem returns the stock position of a product.
func (s *Store) GetItem(ctx context.Context, productID string) (*inventory.Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.items[productID]
	if item == nil {
		return nil, nil
	}
	clone := *item
	return &clone, nil
}

// SetOnHand sets on-hand stock; it may not drop below the reserved quantity.
func (s *Store) SetOnHand(ctx context.Context, productID string, onHand int) error {
	_ = ctx
	if productID == "" {
		return inventory.ErrEmptyProductID
	}
	if onHand < 0 {
		return inventory.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.items[productID]
	if item == nil {
		s.items[productID] = &inventory.Item{ProductID: productID, OnHand: onHand}
		return nil
	}
	if onHand < item.Reserved {
		return inventory.ErrStockBelowReserved
	}
	item.OnHand = onHand
	return nil
}

// Items returns a snapshot of all stock positions for assertions.
func (s *Store) Items() []inventory.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]inventory.Item, 0, len(s.items))
	for _, item := range s.items {
		result = append(result, *item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result
}

func sortReservations(list []inventory.Reservation) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
