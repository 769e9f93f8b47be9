package application

import (
	"context"
	"fmt"

	"marketplace-settlement/internal/auth"
	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
	milestones "marketplace-settlement/internal/milestones/domain"
	orders "marketplace-settlement/internal/orders/domain"
	settlement "marketplace-settlement/internal/settlement/domain"
)

// MilestoneResult is the outcome of a milestone action.
type MilestoneResult struct {
	Milestone      milestones.Milestone `json:"milestone"`
	Payment        *milestones.Payment  `json:"payment,omitempty"`
	Account        *escrow.Snapshot     `json:"account,omitempty"`
	SubOrderStatus orders.Status        `json:"sub_order_status"`
}

// UpdateMilestone applies a milestone action for the actor in ctx. Starting
// work moves the sub-order into installation; a verification that empties
// the escrow account completes it.
func (c *Coordinator) UpdateMilestone(ctx context.Context, milestoneID, action string) (MilestoneResult, error) {
	act, err := settlement.ParseAction(action)
	if err != nil {
		return MilestoneResult{}, err
	}
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return MilestoneResult{}, fmt.Errorf("settlement: missing actor: %w", kernel.ErrForbidden)
	}
	m, err := c.milestones.Get(ctx, milestoneID)
	if err != nil {
		return MilestoneResult{}, err
	}
	sub, err := c.loadSubOrder(ctx, m.SubOrderID)
	if err != nil {
		return MilestoneResult{}, err
	}
	if act == settlement.ActionStart {
		switch sub.Status() {
		case orders.StatusEscrow, orders.StatusInstalling:
		default:
			return MilestoneResult{}, fmt.Errorf("settlement: sub-order %s is %s, work cannot start: %w", sub.ID(), sub.Status(), kernel.ErrInvalidStateTransition)
		}
	}

	advanced, err := c.milestones.Advance(ctx, milestoneID, act.Target(), actor)
	if err != nil {
		return MilestoneResult{}, err
	}
	result := MilestoneResult{
		Milestone:      advanced.Milestone,
		Payment:        advanced.Payment,
		Account:        advanced.Account,
		SubOrderStatus: sub.Status(),
	}

	switch act {
	case settlement.ActionStart:
		moved, err := c.moveSubOrder(ctx, sub.ID(), orders.StatusInstalling)
		if err != nil {
			return result, err
		}
		result.SubOrderStatus = moved.Status()
	case settlement.ActionVerify:
		if advanced.Payment != nil {
			err := c.publishMilestoneVerified(ctx, settlement.MilestoneVerified{
				MilestoneID:   advanced.Milestone.ID,
				SubOrderID:    sub.ID(),
				AccountID:     advanced.Milestone.AccountID,
				RecipientType: advanced.Payment.RecipientType,
				RecipientID:   advanced.Payment.RecipientID,
				Amount:        advanced.Payment.Amount,
				OccurredAt:    c.clock.Now(),
			})
			c.publish("milestone_verified", advanced.Milestone.ID, err)
		}
		if advanced.Account != nil && advanced.Account.Status == escrow.StatusCompleted {
			moved, err := c.moveSubOrder(ctx, sub.ID(), orders.StatusInstalling, orders.StatusCompleted)
			if err != nil {
				return result, err
			}
			result.SubOrderStatus = moved.Status()
		}
	}
	c.logger.Printf("milestone action: milestone=%s action=%s actor=%s sub_order=%s status=%s",
		milestoneID, act, actor.ID, sub.ID(), result.SubOrderStatus)
	return result, nil
}

func (c *Coordinator) publishMilestoneVerified(ctx context.Context, event settlement.MilestoneVerified) error {
	if c.publisher == nil {
		return nil
	}
	return c.publisher.PublishMilestoneVerified(ctx, event)
}
