package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	inventory "marketplace-settlement/internal/inventory/domain"
	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/observability/metrics"
	"marketplace-settlement/internal/retry"
)

// DefaultReservationTTL is how long a reservation holds stock before the sweep may release it.
const DefaultReservationTTL = 15 * time.Minute

const defaultSweepBatch = 500

// ReservationGuard decides whether an expired reservation may be released.
// Reservations whose sub-order already reached a funded escrow state are kept.
type ReservationGuard interface {
	CanExpire(ctx context.Context, subOrderID string) (bool, error)
}

// Ledger reserves, releases and commits stock.
type Ledger struct {
	store  inventory.Store
	ttl    time.Duration
	policy retry.Policy
	clock  kernel.Clock
	logger *log.Logger
	batch  int
}

// LedgerOption configures the ledger.
type LedgerOption func(*Ledger)

// WithTTL overrides the reservation TTL.
func WithTTL(ttl time.Duration) LedgerOption {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryPolicy overrides the contention retry policy.
func WithRetryPolicy(policy retry.Policy) LedgerOption {
	return func(l *Ledger) {
		l.policy = policy.Normalize()
	}
}

// WithClock overrides the clock.
func WithClock(clock kernel.Clock) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithSweepBatch bounds how many expired reservations one sweep handles.
func WithSweepBatch(batch int) LedgerOption {
	return func(l *Ledger) {
		if batch > 0 {
			l.batch = batch
		}
	}
}

// NewLedger constructs the ledger.
func NewLedger(store inventory.Store, opts ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("inventory ledger: nil store")
	}
	l := &Ledger{
		store:  store,
		ttl:    DefaultReservationTTL,
		policy: retry.DefaultPolicy,
		clock:  kernel.SystemClock{},
		logger: log.Default(),
		batch:  defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// TTL returns the configured reservation TTL.
func (l *Ledger) TTL() time.Duration { return l.ttl }

// Reserve holds qty units of productID for subOrderID.
func (l *Ledger) Reserve(ctx context.Context, productID, subOrderID string, qty int) (inventory.Reservation, error) {
	res, err := inventory.NewReservation(productID, subOrderID, qty, l.clock.Now(), l.ttl)
	if err != nil {
		return inventory.Reservation{}, err
	}
	err = retry.Do(ctx, "inventory.reserve", l.policy, func(ctx context.Context) error {
		return l.store.Reserve(ctx, res)
	})
	switch {
	case err == nil:
		metrics.IncReservation(metrics.ResultSuccess)
	case errors.Is(err, kernel.ErrInsufficientStock):
		metrics.IncReservation(metrics.ResultRejected)
		return inventory.Reservation{}, err
	default:
		metrics.IncReservation(metrics.ResultError)
		return inventory.Reservation{}, err
	}
	return res, nil
}

// Release returns a reservation to the available pool. Releasing a reservation
// that is no longer active is a no-op.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	_, err := l.release(ctx, reservationID, inventory.ReservationReleased)
	return err
}

// Commit converts a reservation into a permanent stock decrement.
func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	return retry.Do(ctx, "inventory.commit", l.policy, func(ctx context.Context) error {
		_, err := l.store.Commit(ctx, reservationID, l.clock.Now())
		return err
	})
}

// ReleaseForSubOrder releases every active reservation of a sub-order and
// returns how many were released.
func (l *Ledger) ReleaseForSubOrder(ctx context.Context, subOrderID string) (int, error) {
	list, err := l.store.ListBySubOrder(ctx, subOrderID)
	if err != nil {
		return 0, err
	}
	released := 0
	var errs []error
	for _, res := range list {
		if !res.Active() {
			continue
		}
		changed, err := l.release(ctx, res.ID, inventory.ReservationReleased)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			released++
		}
	}
	return released, errors.Join(errs...)
}

// CommitForSubOrder commits every active reservation of a sub-order. It fails
// when a reservation was already released or expired.
func (l *Ledger) CommitForSubOrder(ctx context.Context, subOrderID string) (int, error) {
	list, err := l.store.ListBySubOrder(ctx, subOrderID)
	if err != nil {
		return 0, err
	}
	committed := 0
	for _, res := range list {
		switch res.Status {
		case inventory.ReservationCommitted:
			continue
		case inventory.ReservationActive:
		default:
			return committed, fmt.Errorf("inventory: reservation %s is %s: %w", res.ID, res.Status, kernel.ErrInvalidStateTransition)
		}
		if err := l.Commit(ctx, res.ID); err != nil {
			return committed, err
		}
		committed++
	}
	return committed, nil
}

// Reservations lists the reservations of a sub-order.
func (l *Ledger) Reservations(ctx context.Context, subOrderID string) ([]inventory.Reservation, error) {
	return l.store.ListBySubOrder(ctx, subOrderID)
}

// Restock sets on-hand stock for a product.
func (l *Ledger) Restock(ctx context.Context, productID string, onHand int) error {
	return retry.Do(ctx, "inventory.restock", l.policy, func(ctx context.Context) error {
		return l.store.SetOnHand(ctx, productID, onHand)
	})
}

// Availability returns the stock position of a product; unknown products have none.
func (l *Ledger) Availability(ctx context.Context, productID string) (inventory.Item, error) {
	item, err := l.store.GetItem(ctx, productID)
	if err != nil {
		return inventory.Item{}, err
	}
	if item == nil {
		return inventory.Item{ProductID: productID}, nil
	}
	return *item, nil
}

// ExpireStale releases active reservations past their TTL whose sub-order the
// guard allows to expire. It returns the reservations it released.
func (l *Ledger) ExpireStale(ctx context.Context, guard ReservationGuard) ([]inventory.Reservation, error) {
	now := l.clock.Now()
	expired, err := l.store.ListExpired(ctx, now, l.batch)
	if err != nil {
		metrics.ObserveSweep(metrics.ResultError, 0)
		return nil, err
	}

	decisions := make(map[string]bool)
	var released []inventory.Reservation
	var errs []error
	for _, res := range expired {
		allowed, seen := decisions[res.SubOrderID]
		if !seen {
			allowed = true
			if guard != nil {
				allowed, err = guard.CanExpire(ctx, res.SubOrderID)
				if err != nil {
					errs = append(errs, fmt.Errorf("inventory: guard sub-order %s: %w", res.SubOrderID, err))
					continue
				}
			}
			decisions[res.SubOrderID] = allowed
		}
		if !allowed {
			continue
		}
		changed, err := l.release(ctx, res.ID, inventory.ReservationExpired)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			res.Status = inventory.ReservationExpired
			released = append(released, res)
		}
	}

	result := metrics.ResultSuccess
	if len(errs) > 0 {
		result = metrics.ResultError
	}
	metrics.ObserveSweep(result, len(released))
	if len(released) > 0 {
		l.logger.Printf("inventory sweep: expired=%d scanned=%d", len(released), len(expired))
	}
	return released, errors.Join(errs...)
}

func (l *Ledger) release(ctx context.Context, reservationID string, status inventory.ReservationStatus) (bool, error) {
	var changed bool
	err := retry.Do(ctx, "inventory.release", l.policy, func(ctx context.Context) error {
		var err error
		_, changed, err = l.store.Release(ctx, reservationID, status, l.clock.Now())
		return err
	})
	return changed, err
}
