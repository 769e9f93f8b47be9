package application

import (
	"context"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/auth"
	escrowapp "marketplace-settlement/internal/escrow/application"
	escrow "marketplace-settlement/internal/escrow/domain"
	inventoryapp "marketplace-settlement/internal/inventory/application"
	inventory "marketplace-settlement/internal/inventory/domain"
	milestoneapp "marketplace-settlement/internal/milestones/application"
	milestones "marketplace-settlement/internal/milestones/domain"
	orderapp "marketplace-settlement/internal/orders/application"
	settlement "marketplace-settlement/internal/settlement/domain"
)

// Splitter turns carts into sub-orders.
type Splitter interface {
	Split(ctx context.Context, cart orderapp.Cart) (orderapp.SplitResult, error)
}

// Ledger is the part of the inventory ledger the coordinator drives after checkout.
type Ledger interface {
	CommitForSubOrder(ctx context.Context, subOrderID string) (int, error)
	ReleaseForSubOrder(ctx context.Context, subOrderID string) (int, error)
	ExpireStale(ctx context.Context, guard inventoryapp.ReservationGuard) ([]inventory.Reservation, error)
}

// Escrow is the escrow manager surface.
type Escrow interface {
	Fund(ctx context.Context, accountID, gatewayTxnID string, amount decimal.Decimal) (escrowapp.FundResult, error)
	Refund(ctx context.Context, accountID string, amount decimal.Decimal, reason string) (escrow.Snapshot, error)
	Dispute(ctx context.Context, accountID, reason string) (escrow.Snapshot, error)
	ResolveDispute(ctx context.Context, accountID string) (escrow.Snapshot, error)
	Get(ctx context.Context, accountID string) (escrow.Snapshot, error)
	GetBySubOrder(ctx context.Context, subOrderID string) (escrow.Snapshot, error)
}

// Milestones is the milestone scheduler surface.
type Milestones interface {
	Schedule(ctx context.Context, accountID, subOrderID string, total decimal.Decimal, plans []milestones.Plan) ([]milestones.Milestone, error)
	Advance(ctx context.Context, milestoneID string, next milestones.Status, actor auth.Actor) (milestoneapp.AdvanceResult, error)
	Get(ctx context.Context, milestoneID string) (milestones.Milestone, error)
	List(ctx context.Context, accountID string) ([]milestones.Milestone, error)
}

// EventPublisher emits notification events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event settlement.OrderCreated) error
	PublishMilestoneVerified(ctx context.Context, event settlement.MilestoneVerified) error
	PublishRefundIssued(ctx context.Context, event settlement.RefundIssued) error
}
