package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-settlement/internal/auth"
	"marketplace-settlement/internal/kernel"
	milestones "marketplace-settlement/internal/milestones/domain"
	"marketplace-settlement/internal/observability/metrics"
	orderapp "marketplace-settlement/internal/orders/application"
	orders "marketplace-settlement/internal/orders/domain"
	"marketplace-settlement/internal/pricing"
	settlement "marketplace-settlement/internal/settlement/domain"
)

// CheckoutRequest is a cart plus an optional milestone plan applied to every
// sub-order. An empty plan uses the configured default.
type CheckoutRequest struct {
	Cart orderapp.Cart     `json:"cart"`
	Plan []milestones.Plan `json:"plan,omitempty"`
}

// PlacedSubOrder is a sub-order created by checkout.
type PlacedSubOrder struct {
	SubOrder   orders.Snapshot        `json:"sub_order"`
	Milestones []milestones.Milestone `json:"milestones"`
}

// VendorFailure explains why a vendor group was not ordered.
type VendorFailure struct {
	VendorID string `json:"vendor_id"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// CheckoutResult is the outcome of a checkout.
type CheckoutResult struct {
	ParentOrderID string           `json:"parent_order_id"`
	SubOrders     []PlacedSubOrder `json:"sub_orders"`
	Failures      []VendorFailure  `json:"failures,omitempty"`
}

// Checkout splits the cart, schedules milestones for every placed sub-order and
// announces them. Vendor groups that fail are reported, not fatal; the call
// only fails when nothing could be ordered.
func (c *Coordinator) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	start := time.Now()
	result, err := c.checkout(ctx, req)
	switch {
	case err == nil:
		metrics.ObserveCheckout(metrics.ResultSuccess, time.Since(start))
	case errors.Is(err, kernel.ErrResourceContention):
		metrics.ObserveCheckout(metrics.ResultError, time.Since(start))
	default:
		metrics.ObserveCheckout(metrics.ResultRejected, time.Since(start))
	}
	return result, err
}

func (c *Coordinator) checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	cart := req.Cart
	if actor, ok := auth.ActorFromContext(ctx); ok && actor.Is(auth.RoleBuyer) {
		if cart.BuyerID != "" && cart.BuyerID != actor.ID {
			return CheckoutResult{}, fmt.Errorf("settlement: buyer %s cannot check out for %s: %w", actor.ID, cart.BuyerID, kernel.ErrForbidden)
		}
		cart.BuyerID = actor.ID
	}
	if cart.PaymentType == "" {
		cart.PaymentType = pricing.PaymentFull
	}

	plan := c.defaultPlan
	if len(req.Plan) > 0 {
		if err := milestones.ValidatePlan(req.Plan); err != nil {
			return CheckoutResult{}, err
		}
		plan = req.Plan
	}

	split, err := c.splitter.Split(ctx, cart)
	if err != nil {
		return CheckoutResult{Failures: vendorFailures(split.Failures)}, err
	}

	result := CheckoutResult{
		ParentOrderID: split.Order.ID,
		Failures:      vendorFailures(split.Failures),
	}
	var errs []error
	for _, sub := range split.SubOrders {
		schedule, err := c.milestones.Schedule(ctx, sub.EscrowAccountID(), sub.ID(), sub.Total(), plan)
		if err != nil {
			c.logger.Printf("checkout schedule failed: order=%s sub_order=%s err=%v", split.Order.ID, sub.ID(), err)
			c.abandon(ctx, sub.ID())
			result.Failures = append(result.Failures, VendorFailure{VendorID: sub.VendorID(), Reason: err.Error(), Err: err})
			errs = append(errs, fmt.Errorf("vendor %s: %w", sub.VendorID(), err))
			continue
		}
		result.SubOrders = append(result.SubOrders, PlacedSubOrder{SubOrder: sub.Snapshot(), Milestones: schedule})

		err = c.publishOrderCreated(ctx, settlement.OrderCreated{
			ParentOrderID: split.Order.ID,
			SubOrderID:    sub.ID(),
			BuyerID:       sub.BuyerID(),
			VendorID:      sub.VendorID(),
			Total:         sub.Total(),
			PaymentType:   string(sub.PaymentType()),
			Milestones:    len(schedule),
			OccurredAt:    c.clock.Now(),
		})
		c.publish("order_created", sub.ID(), err)
	}
	if len(result.SubOrders) == 0 {
		return result, errors.Join(errs...)
	}
	c.logger.Printf("checkout completed: order=%s buyer=%s sub_orders=%d failures=%d",
		result.ParentOrderID, cart.BuyerID, len(result.SubOrders), len(result.Failures))
	return result, nil
}

// abandon cancels a placed sub-order whose follow-up setup failed.
func (c *Coordinator) abandon(ctx context.Context, subOrderID string) {
	if _, err := c.ledger.ReleaseForSubOrder(ctx, subOrderID); err != nil {
		c.logger.Printf("checkout release failed: sub_order=%s err=%v", subOrderID, err)
	}
	if _, err := c.moveSubOrder(ctx, subOrderID, orders.StatusCancelled); err != nil {
		c.logger.Printf("checkout cancel failed: sub_order=%s err=%v", subOrderID, err)
	}
}

func (c *Coordinator) publishOrderCreated(ctx context.Context, event settlement.OrderCreated) error {
	if c.publisher == nil {
		return nil
	}
	return c.publisher.PublishOrderCreated(ctx, event)
}

func vendorFailures(in []orderapp.VendorFailure) []VendorFailure {
	if len(in) == 0 {
		return nil
	}
	out := make([]VendorFailure, 0, len(in))
	for _, f := range in {
		reason := ""
		if f.Err != nil {
			reason = f.Err.Error()
		}
		out = append(out, VendorFailure{VendorID: f.VendorID, Reason: reason, Err: f.Err})
	}
	return out
}
