package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	"marketplace-settlement/internal/auth"
	"marketplace-settlement/internal/kernel"
	milestones "marketplace-settlement/internal/milestones/domain"
	orders "marketplace-settlement/internal/orders/domain"
	"marketplace-settlement/internal/retry"
)

// Coordinator runs the cross-component settlement flows. Each step is a
// single-aggregate write; failures part way through are compensated rather
// than rolled back.
type Coordinator struct {
	splitter    Splitter
	ledger      Ledger
	escrow      Escrow
	milestones  Milestones
	orders      orders.Repository
	publisher   EventPublisher
	defaultPlan []milestones.Plan
	clock       kernel.Clock
	policy      retry.Policy
	logger      *log.Logger
}

// CoordinatorOption configures the coordinator.
type CoordinatorOption func(*Coordinator)

// WithPublisher sets the notification publisher.
func WithPublisher(publisher EventPublisher) CoordinatorOption {
	return func(c *Coordinator) {
		c.publisher = publisher
	}
}

// WithDefaultPlan overrides the milestone plan used when checkout carries none.
func WithDefaultPlan(plan []milestones.Plan) CoordinatorOption {
	return func(c *Coordinator) {
		if len(plan) > 0 {
			c.defaultPlan = append([]milestones.Plan(nil), plan...)
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock kernel.Clock) CoordinatorOption {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithRetryPolicy overrides the contention retry policy.
func WithRetryPolicy(policy retry.Policy) CoordinatorOption {
	return func(c *Coordinator) {
		c.policy = policy.Normalize()
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// DefaultPlan is a single milestone covering the whole sub-order, installed by the vendor.
func DefaultPlan() []milestones.Plan {
	return []milestones.Plan{{Name: "delivery and installation", Percentage: kernel.Hundred()}}
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(splitter Splitter, ledger Ledger, escrow Escrow, scheduler Milestones, repo orders.Repository, opts ...CoordinatorOption) (*Coordinator, error) {
	if splitter == nil {
		return nil, errors.New("settlement coordinator: nil splitter")
	}
	if ledger == nil {
		return nil, errors.New("settlement coordinator: nil ledger")
	}
	if escrow == nil {
		return nil, errors.New("settlement coordinator: nil escrow")
	}
	if scheduler == nil {
		return nil, errors.New("settlement coordinator: nil milestone scheduler")
	}
	if repo == nil {
		return nil, errors.New("settlement coordinator: nil order repository")
	}
	c := &Coordinator{
		splitter:    splitter,
		ledger:      ledger,
		escrow:      escrow,
		milestones:  scheduler,
		orders:      repo,
		defaultPlan: DefaultPlan(),
		clock:       kernel.SystemClock{},
		policy:      retry.DefaultPolicy,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := milestones.ValidatePlan(c.defaultPlan); err != nil {
		return nil, fmt.Errorf("settlement coordinator: default plan: %w", err)
	}
	return c, nil
}

func (c *Coordinator) loadOrder(ctx context.Context, parentOrderID string) (*orders.Order, error) {
	order, err := c.orders.FindOrder(ctx, parentOrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("settlement: order %s: %w", parentOrderID, kernel.ErrNotFound)
	}
	return order, nil
}

func (c *Coordinator) loadSubOrder(ctx context.Context, subOrderID string) (*orders.SubOrder, error) {
	sub, err := c.orders.FindSubOrder(ctx, subOrderID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("settlement: sub-order %s: %w", subOrderID, kernel.ErrNotFound)
	}
	return sub, nil
}

// subOrdersOf loads the sub-orders of an order in vendor order.
func (c *Coordinator) subOrdersOf(ctx context.Context, order *orders.Order) ([]*orders.SubOrder, error) {
	subs := make([]*orders.SubOrder, 0, len(order.SubOrderIDs))
	for _, id := range order.SubOrderIDs {
		sub, err := c.loadSubOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// moveSubOrder walks a sub-order through the given statuses, skipping steps it
// has already passed. It reloads and retries on version conflicts.
func (c *Coordinator) moveSubOrder(ctx context.Context, subOrderID string, path ...orders.Status) (*orders.SubOrder, error) {
	var result *orders.SubOrder
	err := retry.Do(ctx, "settlement.sub_order", c.policy, func(ctx context.Context) error {
		sub, err := c.loadSubOrder(ctx, subOrderID)
		if err != nil {
			return err
		}
		changed := false
		for i, next := range path {
			if sub.Status() == next || reached(sub.Status(), path[i:]) {
				continue
			}
			if err := sub.Transition(next, c.clock.Now()); err != nil {
				return err
			}
			changed = true
		}
		if changed {
			if err := c.orders.SaveSubOrder(ctx, sub); err != nil {
				return err
			}
		}
		result = sub
		return nil
	})
	return result, err
}

// reached reports whether status is a later step of the remaining path.
func reached(status orders.Status, remaining []orders.Status) bool {
	for _, s := range remaining[1:] {
		if s == status {
			return true
		}
	}
	return false
}

// authorizeBuyer allows admins and the owning buyer.
func authorizeBuyer(ctx context.Context, buyerID string) (auth.Actor, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return auth.Actor{}, fmt.Errorf("settlement: missing actor: %w", kernel.ErrForbidden)
	}
	if actor.Is(auth.RoleAdmin) || (actor.Is(auth.RoleBuyer) && actor.ID == buyerID) {
		return actor, nil
	}
	return actor, fmt.Errorf("settlement: %s %s does not own this order: %w", actor.Role, actor.ID, kernel.ErrForbidden)
}

func (c *Coordinator) publish(kind, id string, err error) {
	if err != nil {
		c.logger.Printf("settlement event publish failed: event=%s id=%s err=%v", kind, id, err)
	}
}
