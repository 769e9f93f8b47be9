package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/observability/metrics"
	orders "marketplace-settlement/internal/orders/domain"
	settlement "marketplace-settlement/internal/settlement/domain"
)

// FundedSubOrder is the funding outcome of one sub-order.
type FundedSubOrder struct {
	SubOrderID string          `json:"sub_order_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     orders.Status   `json:"status"`
	Account    escrow.Snapshot `json:"account"`
	Duplicate  bool            `json:"duplicate"`
}

// PaymentResult is the outcome of a payment confirmation. Duplicate is set
// when every sub-order had already been funded by this gateway transaction.
type PaymentResult struct {
	ParentOrderID string           `json:"parent_order_id"`
	GatewayTxnID  string           `json:"gateway_txn_id"`
	Amount        decimal.Decimal  `json:"amount"`
	SubOrders     []FundedSubOrder `json:"sub_orders"`
	Duplicate     bool             `json:"duplicate"`
}

// ConfirmPayment distributes a gateway charge across the live sub-orders of
// an order in proportion to their totals. A zero amount means the full charge.
// Each sub-order is funded, has its stock committed and moves to escrow; a
// sub-order that fails is compensated and reported without undoing the others.
func (c *Coordinator) ConfirmPayment(ctx context.Context, parentOrderID, gatewayTxnID string, amount decimal.Decimal) (PaymentResult, error) {
	start := time.Now()
	result, err := c.confirmPayment(ctx, parentOrderID, gatewayTxnID, amount)
	switch {
	case err == nil && result.Duplicate:
		metrics.ObservePaymentConfirm(metrics.ResultDuplicate, time.Since(start))
	case err == nil:
		metrics.ObservePaymentConfirm(metrics.ResultSuccess, time.Since(start))
	case errors.Is(err, kernel.ErrResourceContention):
		metrics.ObservePaymentConfirm(metrics.ResultError, time.Since(start))
	default:
		metrics.ObservePaymentConfirm(metrics.ResultRejected, time.Since(start))
	}
	return result, err
}

func (c *Coordinator) confirmPayment(ctx context.Context, parentOrderID, gatewayTxnID string, amount decimal.Decimal) (PaymentResult, error) {
	if strings.TrimSpace(parentOrderID) == "" {
		return PaymentResult{}, settlement.ErrEmptyOrderID
	}
	if strings.TrimSpace(gatewayTxnID) == "" {
		return PaymentResult{}, settlement.ErrEmptyGatewayTxnID
	}
	if amount.IsNegative() {
		return PaymentResult{}, fmt.Errorf("settlement: payment %s: %w", amount, kernel.ErrInvalidAmount)
	}
	order, err := c.loadOrder(ctx, parentOrderID)
	if err != nil {
		return PaymentResult{}, err
	}
	subs, err := c.subOrdersOf(ctx, order)
	if err != nil {
		return PaymentResult{}, err
	}

	payable := make([]*orders.SubOrder, 0, len(subs))
	weights := make([]decimal.Decimal, 0, len(subs))
	total := decimal.Zero
	for _, sub := range subs {
		if sub.Status() == orders.StatusCancelled {
			continue
		}
		payable = append(payable, sub)
		weights = append(weights, sub.Total())
		total = total.Add(sub.Total())
	}
	if len(payable) == 0 {
		return PaymentResult{}, fmt.Errorf("settlement: order %s: %w", parentOrderID, settlement.ErrNothingPayable)
	}
	amount = kernel.Cents(amount)
	if amount.IsZero() {
		amount = total
	}
	if amount.GreaterThan(total) {
		return PaymentResult{}, fmt.Errorf("settlement: payment %s exceeds order total %s: %w", amount, total, kernel.ErrInvalidAmount)
	}
	shares, err := kernel.SplitProportional(amount, weights)
	if err != nil {
		return PaymentResult{}, err
	}

	result := PaymentResult{ParentOrderID: parentOrderID, GatewayTxnID: gatewayTxnID, Amount: amount, Duplicate: true}
	var errs []error
	for i, sub := range payable {
		funded, err := c.fundSubOrder(ctx, sub, gatewayTxnID, shares[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("sub-order %s: %w", sub.ID(), err))
			result.Duplicate = false
			continue
		}
		if !funded.Duplicate {
			result.Duplicate = false
		}
		result.SubOrders = append(result.SubOrders, funded)
	}
	if len(result.SubOrders) == 0 {
		result.Duplicate = false
	}
	c.logger.Printf("payment confirmed: order=%s txn=%s amount=%s funded=%d failed=%d duplicate=%t",
		parentOrderID, gatewayTxnID, amount, len(result.SubOrders), len(errs), result.Duplicate)
	return result, errors.Join(errs...)
}

// fundSubOrder funds one escrow account and advances its sub-order. A replayed
// transaction still finishes the steps an earlier attempt did not reach.
func (c *Coordinator) fundSubOrder(ctx context.Context, sub *orders.SubOrder, gatewayTxnID string, share decimal.Decimal) (FundedSubOrder, error) {
	out := FundedSubOrder{SubOrderID: sub.ID(), Amount: share, Status: sub.Status()}
	if sub.EscrowAccountID() == "" {
		return out, fmt.Errorf("settlement: sub-order %s has no escrow account: %w", sub.ID(), kernel.ErrNotFound)
	}
	fund, err := c.escrow.Fund(ctx, sub.EscrowAccountID(), gatewayTxnID, share)
	if err != nil {
		return out, err
	}
	out.Account = fund.Account
	out.Duplicate = fund.Duplicate

	switch sub.Status() {
	case orders.StatusInstalling, orders.StatusCompleted:
		return out, nil
	}

	if _, err := c.ledger.CommitForSubOrder(ctx, sub.ID()); err != nil {
		c.logger.Printf("payment commit failed: sub_order=%s err=%v", sub.ID(), err)
		c.refundUnshippable(ctx, sub, fund.Account, err)
		return out, err
	}
	moved, err := c.moveSubOrder(ctx, sub.ID(), orders.StatusPaid, orders.StatusEscrow)
	if err != nil {
		return out, err
	}
	out.Status = moved.Status()
	return out, nil
}

// refundUnshippable returns the money of a funded sub-order whose stock could
// not be committed and cancels it.
func (c *Coordinator) refundUnshippable(ctx context.Context, sub *orders.SubOrder, account escrow.Snapshot, cause error) {
	if account.Held.IsPositive() {
		reason := fmt.Sprintf("stock unavailable at payment: %v", cause)
		snap, err := c.escrow.Refund(ctx, account.ID, account.Held, reason)
		if err != nil {
			c.logger.Printf("payment refund failed: sub_order=%s err=%v", sub.ID(), err)
		} else {
			c.publish("refund_issued", sub.ID(), c.publishRefund(ctx, sub, snap.ID, account.Held, reason))
		}
	}
	if _, err := c.ledger.ReleaseForSubOrder(ctx, sub.ID()); err != nil {
		c.logger.Printf("payment release failed: sub_order=%s err=%v", sub.ID(), err)
	}
	if _, err := c.moveSubOrder(ctx, sub.ID(), orders.StatusCancelled); err != nil {
		c.logger.Printf("payment cancel failed: sub_order=%s err=%v", sub.ID(), err)
	}
}
