package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/auth"
	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
	orders "marketplace-settlement/internal/orders/domain"
	settlement "marketplace-settlement/internal/settlement/domain"
)

// RefundResult is the outcome of a refund or cancellation.
type RefundResult struct {
	SubOrderID string          `json:"sub_order_id"`
	Status     orders.Status   `json:"status"`
	Refunded   decimal.Decimal `json:"refunded"`
	Account    escrow.Snapshot `json:"account"`
}

// RequestRefund returns amount from the sub-order's escrow to the buyer. A
// zero amount refunds everything still held. Sub-orders that have not reached
// escrow yet are cancelled and their stock released. Once installation has
// started the account must be disputed first, since the remaining milestones
// are sized against the held balance.
func (c *Coordinator) RequestRefund(ctx context.Context, subOrderID string, amount decimal.Decimal, reason string) (RefundResult, error) {
	if strings.TrimSpace(subOrderID) == "" {
		return RefundResult{}, settlement.ErrEmptySubOrderID
	}
	if amount.IsNegative() {
		return RefundResult{}, fmt.Errorf("settlement: refund %s: %w", amount, kernel.ErrInvalidAmount)
	}
	sub, err := c.loadSubOrder(ctx, subOrderID)
	if err != nil {
		return RefundResult{}, err
	}
	account, err := c.escrow.Get(ctx, sub.EscrowAccountID())
	if err != nil {
		return RefundResult{}, err
	}
	amount = kernel.Cents(amount)
	if amount.IsZero() {
		amount = account.Held
	}
	if strings.TrimSpace(reason) == "" {
		reason = "refund requested"
	}

	if amount.IsPositive() && installationStarted(sub, account) && account.Status != escrow.StatusDisputed {
		return RefundResult{}, fmt.Errorf("settlement: sub-order %s is %s, refund needs a dispute: %w", sub.ID(), sub.Status(), kernel.ErrInvalidStateTransition)
	}

	result := RefundResult{SubOrderID: sub.ID(), Status: sub.Status(), Account: account}
	if amount.IsPositive() {
		account, err = c.escrow.Refund(ctx, account.ID, amount, reason)
		if err != nil {
			return result, err
		}
		result.Account = account
		result.Refunded = amount
		c.publish("refund_issued", sub.ID(), c.publishRefund(ctx, sub, account.ID, amount, reason))
	}

	switch sub.Status() {
	case orders.StatusPending, orders.StatusPaid:
		moved, err := c.cancel(ctx, sub.ID())
		if err != nil {
			return result, err
		}
		result.Status = moved.Status()
	}
	c.logger.Printf("refund issued: sub_order=%s amount=%s account_status=%s", sub.ID(), result.Refunded, result.Account.Status)
	return result, nil
}

// CancelSubOrder abandons a sub-order that has not reached escrow. Its stock
// is released immediately and any money already held is refunded.
func (c *Coordinator) CancelSubOrder(ctx context.Context, subOrderID string) (RefundResult, error) {
	if strings.TrimSpace(subOrderID) == "" {
		return RefundResult{}, settlement.ErrEmptySubOrderID
	}
	sub, err := c.loadSubOrder(ctx, subOrderID)
	if err != nil {
		return RefundResult{}, err
	}
	if _, err := authorizeBuyer(ctx, sub.BuyerID()); err != nil {
		return RefundResult{}, err
	}
	if !orders.CanTransition(sub.Status(), orders.StatusCancelled) {
		return RefundResult{}, fmt.Errorf("settlement: sub-order %s is %s: %w", sub.ID(), sub.Status(), kernel.ErrInvalidStateTransition)
	}

	result := RefundResult{SubOrderID: sub.ID(), Status: sub.Status()}
	if sub.EscrowAccountID() != "" {
		account, err := c.escrow.Get(ctx, sub.EscrowAccountID())
		if err != nil && !errors.Is(err, kernel.ErrNotFound) {
			return result, err
		}
		result.Account = account
		if account.Held.IsPositive() {
			reason := "sub-order cancelled"
			refunded, err := c.escrow.Refund(ctx, account.ID, account.Held, reason)
			if err != nil {
				return result, err
			}
			result.Account = refunded
			result.Refunded = account.Held
			c.publish("refund_issued", sub.ID(), c.publishRefund(ctx, sub, account.ID, account.Held, reason))
		}
	}
	moved, err := c.cancel(ctx, sub.ID())
	if err != nil {
		return result, err
	}
	result.Status = moved.Status()
	c.logger.Printf("sub-order cancelled: sub_order=%s refunded=%s", sub.ID(), result.Refunded)
	return result, nil
}

// CancelSubOrderOf cancels one sub-order of parentOrderID. A sub-order that
// belongs to another order is reported as not found.
func (c *Coordinator) CancelSubOrderOf(ctx context.Context, parentOrderID, subOrderID string) (RefundResult, error) {
	if strings.TrimSpace(subOrderID) == "" {
		return RefundResult{}, settlement.ErrEmptySubOrderID
	}
	sub, err := c.loadSubOrder(ctx, subOrderID)
	if err != nil {
		return RefundResult{}, err
	}
	if sub.ParentID() != parentOrderID {
		return RefundResult{}, fmt.Errorf("settlement: sub-order %s in order %s: %w", subOrderID, parentOrderID, kernel.ErrNotFound)
	}
	return c.CancelSubOrder(ctx, subOrderID)
}

// CancelOrder cancels every sub-order of an order that can still be cancelled.
func (c *Coordinator) CancelOrder(ctx context.Context, parentOrderID string) ([]RefundResult, error) {
	order, err := c.loadOrder(ctx, parentOrderID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeBuyer(ctx, order.BuyerID); err != nil {
		return nil, err
	}
	subs, err := c.subOrdersOf(ctx, order)
	if err != nil {
		return nil, err
	}
	var results []RefundResult
	var errs []error
	for _, sub := range subs {
		if !orders.CanTransition(sub.Status(), orders.StatusCancelled) {
			continue
		}
		res, err := c.CancelSubOrder(ctx, sub.ID())
		if err != nil {
			errs = append(errs, fmt.Errorf("sub-order %s: %w", sub.ID(), err))
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 && len(errs) == 0 {
		return nil, fmt.Errorf("settlement: order %s has nothing to cancel: %w", parentOrderID, kernel.ErrInvalidStateTransition)
	}
	return results, errors.Join(errs...)
}

// DisputeEscrow freezes the escrow account of a sub-order.
func (c *Coordinator) DisputeEscrow(ctx context.Context, subOrderID, reason string) (escrow.Snapshot, error) {
	sub, err := c.loadSubOrder(ctx, subOrderID)
	if err != nil {
		return escrow.Snapshot{}, err
	}
	actor, err := authorizeBuyer(ctx, sub.BuyerID())
	if err != nil {
		return escrow.Snapshot{}, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "disputed by " + actor.ID
	}
	snap, err := c.escrow.Dispute(ctx, sub.EscrowAccountID(), reason)
	if err != nil {
		return escrow.Snapshot{}, err
	}
	c.logger.Printf("escrow disputed: sub_order=%s actor=%s", sub.ID(), actor.ID)
	return snap, nil
}

// ResolveDispute lifts a dispute and restores the pre-dispute status. Only
// admins resolve disputes.
func (c *Coordinator) ResolveDispute(ctx context.Context, subOrderID string) (escrow.Snapshot, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok || !actor.Is(auth.RoleAdmin) {
		return escrow.Snapshot{}, fmt.Errorf("settlement: resolve dispute requires admin: %w", kernel.ErrForbidden)
	}
	sub, err := c.loadSubOrder(ctx, subOrderID)
	if err != nil {
		return escrow.Snapshot{}, err
	}
	snap, err := c.escrow.ResolveDispute(ctx, sub.EscrowAccountID())
	if err != nil {
		return escrow.Snapshot{}, err
	}
	c.logger.Printf("escrow dispute resolved: sub_order=%s status=%s", sub.ID(), snap.Status)
	return snap, nil
}

func installationStarted(sub *orders.SubOrder, account escrow.Snapshot) bool {
	return sub.Status() == orders.StatusInstalling || account.Released.IsPositive()
}

func (c *Coordinator) cancel(ctx context.Context, subOrderID string) (*orders.SubOrder, error) {
	if _, err := c.ledger.ReleaseForSubOrder(ctx, subOrderID); err != nil {
		return nil, err
	}
	return c.moveSubOrder(ctx, subOrderID, orders.StatusCancelled)
}

func (c *Coordinator) publishRefund(ctx context.Context, sub *orders.SubOrder, accountID string, amount decimal.Decimal, reason string) error {
	if c.publisher == nil {
		return nil
	}
	return c.publisher.PublishRefundIssued(ctx, settlement.RefundIssued{
		SubOrderID: sub.ID(),
		AccountID:  accountID,
		BuyerID:    sub.BuyerID(),
		Amount:     amount,
		Reason:     reason,
		OccurredAt: c.clock.Now(),
	})
}
