package interfaces

import (
	"context"

	"marketplace-settlement/internal/eventing"
	settlement "marketplace-settlement/internal/settlement/domain"
)

// OutboxPublisher writes settlement events to the outbox.
type OutboxPublisher struct {
	publisher *eventing.Publisher
}

// NewOutboxPublisher constructs an outbox publisher.
func NewOutboxPublisher(publisher *eventing.Publisher) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher}
}

// PublishOrderCreated writes the event to the outbox.
func (p *OutboxPublisher) PublishOrderCreated(ctx context.Context, event settlement.OrderCreated) error {
	return p.publish(ctx, event)
}

// PublishMilestoneVerified writes the event to the outbox.
func (p *OutboxPublisher) PublishMilestoneVerified(ctx context.Context, event settlement.MilestoneVerified) error {
	return p.publish(ctx, event)
}

// PublishRefundIssued writes the event to the outbox.
func (p *OutboxPublisher) PublishRefundIssued(ctx context.Context, event settlement.RefundIssued) error {
	return p.publish(ctx, event)
}

func (p *OutboxPublisher) publish(ctx context.Context, event any) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(ctx, event)
}

// RegisterEvents makes the settlement events decodable by the dispatcher.
func RegisterEvents(registry *eventing.Registry) {
	registry.Register(settlement.OrderCreated{})
	registry.Register(settlement.MilestoneVerified{})
	registry.Register(settlement.RefundIssued{})
}
