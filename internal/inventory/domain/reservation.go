package inventory

import (
	"fmt"
	"time"

	"marketplace-settlement/internal/kernel"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationReleased  ReservationStatus = "released"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCommitted ReservationStatus = "committed"
)

// Reservation is a temporary hold on stock for one sub-order line.
type Reservation struct {
	ID         string            `json:"id"`
	ProductID  string            `json:"product_id"`
	SubOrderID string            `json:"sub_order_id"`
	Quantity   int               `json:"quantity"`
	Status     ReservationStatus `json:"status"`
	ExpiresAt  time.Time         `json:"expires_at"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewReservation builds an active reservation expiring after ttl.
func NewReservation(productID, subOrderID string, qty int, now time.Time, ttl time.Duration) (Reservation, error) {
	if productID == "" {
		return Reservation{}, ErrEmptyProductID
	}
	if subOrderID == "" {
		return Reservation{}, ErrEmptySubOrderID
	}
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	now = now.UTC()
	return Reservation{
		ID:         kernel.NewID("res"),
		ProductID:  productID,
		SubOrderID: subOrderID,
		Quantity:   qty,
		Status:     ReservationActive,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Active reports whether the reservation still holds stock.
func (r Reservation) Active() bool { return r.Status == ReservationActive }

// Expired reports whether an active reservation is past its TTL.
func (r Reservation) Expired(now time.Time) bool {
	return r.Active() && !now.Before(r.ExpiresAt)
}

// CanTransition reports whether the reservation may move to next. Released,
// expired and committed are terminal.
func (r Reservation) CanTransition(next ReservationStatus) bool {
	if r.Status != ReservationActive {
		return false
	}
	switch next {
	case ReservationReleased, ReservationExpired, ReservationCommitted:
		return true
	default:
		return false
	}
}

// Transition moves the reservation to a terminal status.
func (r *Reservation) Transition(next ReservationStatus, at time.Time) error {
	if !r.CanTransition(next) {
		return fmt.Errorf("inventory: reservation %s %s -> %s: %w", r.ID, r.Status, next, kernel.ErrInvalidStateTransition)
	}
	r.Status = next
	r.UpdatedAt = at.UTC()
	return nil
}
