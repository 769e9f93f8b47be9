package application

import (
	"context"
	"errors"
	"fmt"

	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
	orders "marketplace-settlement/internal/orders/domain"
)

// SweepResult reports one reservation expiry sweep.
type SweepResult struct {
	Released  int      `json:"released"`
	Cancelled []string `json:"cancelled_sub_orders"`
}

// SweepExpiredReservations releases reservations past their TTL, except those
// of sub-orders whose escrow already holds money, and cancels the pending
// sub-orders that lost their stock.
func (c *Coordinator) SweepExpiredReservations(ctx context.Context) (SweepResult, error) {
	guard := NewReservationGuard(c.escrow)
	released, sweepErr := c.ledger.ExpireStale(ctx, guard)
	result := SweepResult{Released: len(released)}

	seen := make(map[string]struct{})
	var errs []error
	if sweepErr != nil {
		errs = append(errs, sweepErr)
	}
	for _, res := range released {
		if _, ok := seen[res.SubOrderID]; ok {
			continue
		}
		seen[res.SubOrderID] = struct{}{}

		sub, err := c.orders.FindSubOrder(ctx, res.SubOrderID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if sub == nil || sub.Status() != orders.StatusPending {
			continue
		}
		// Remaining reservations of the same sub-order go too; a partial
		// order cannot ship.
		if _, err := c.ledger.ReleaseForSubOrder(ctx, sub.ID()); err != nil {
			errs = append(errs, err)
		}
		if _, err := c.moveSubOrder(ctx, sub.ID(), orders.StatusCancelled); err != nil {
			errs = append(errs, fmt.Errorf("sub-order %s: %w", sub.ID(), err))
			continue
		}
		result.Cancelled = append(result.Cancelled, sub.ID())
	}
	if len(result.Cancelled) > 0 {
		c.logger.Printf("reservation sweep: released=%d cancelled=%d", result.Released, len(result.Cancelled))
	}
	return result, errors.Join(errs...)
}

// EscrowReader reads escrow accounts by sub-order.
type EscrowReader interface {
	GetBySubOrder(ctx context.Context, subOrderID string) (escrow.Snapshot, error)
}

// ReservationGuard keeps the reservations of sub-orders whose escrow account
// has been funded. Reservations without an account belong to abandoned
// splits and may always expire.
type ReservationGuard struct {
	escrow EscrowReader
}

// NewReservationGuard constructs a guard over escrow status.
func NewReservationGuard(reader EscrowReader) *ReservationGuard {
	return &ReservationGuard{escrow: reader}
}

// CanExpire implements the inventory ledger guard.
func (g *ReservationGuard) CanExpire(ctx context.Context, subOrderID string) (bool, error) {
	if g == nil || g.escrow == nil {
		return true, nil
	}
	account, err := g.escrow.GetBySubOrder(ctx, subOrderID)
	if errors.Is(err, kernel.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !account.Status.Funded(), nil
}
