package inventory

import (
	"context"
	"time"
)

// Store persists stock positions and reservations. Reserve, Release and Commit
// must each apply the stock change and the reservation change atomically, and
// Reserve must guard the increment with on_hand - reserved >= quantity.
type Store interface {
	Reserve(ctx context.Context, reservation Reservation) error
	// Release moves an active reservation to released or expired and returns
	// its quantity to the pool. Non-active reservations are returned unchanged.
	// changed is true only for the call that performed the transition.
	Release(ctx context.Context, reservationID string, status ReservationStatus, at time.Time) (res Reservation, changed bool, err error)
	// Commit converts an active reservation into a permanent stock decrement.
	// Already committed reservations are returned unchanged.
	Commit(ctx context.Context, reservationID string, at time.Time) (Reservation, error)
	Get(ctx context.Context, reservationID string) (*Reservation, error)
	ListBySubOrder(ctx context.Context, subOrderID string) ([]Reservation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	GetItem(ctx context.Context, productID string) (*Item, error)
	SetOnHand(ctx context.Context, productID string, onHand int) error
}
