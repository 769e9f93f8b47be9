package eventing

import (
	"context"
	"log"
	"time"

	"marketplace-settlement/internal/eventing/eventbus"
	"marketplace-settlement/internal/observability/metrics"
)

// Publisher writes events to the outbox. Delivery happens later through the
// dispatcher, so a publish never blocks on consumers.
type Publisher struct {
	outbox OutboxWriter
	sub    Subscriber
	logger *log.Logger
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Subscriber registers handlers.
type Subscriber interface {
	Subscribe(eventType string, handler eventbus.EventHandler)
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter, sub Subscriber, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{outbox: outbox, sub: sub, logger: logger}
}

// Publish writes the event to outbox.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	start := time.Now()
	if p == nil || p.outbox == nil {
		metrics.ObserveOutboxPublish(metrics.ResultSuccess, time.Since(start))
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	duration := time.Since(start)
	metrics.ObserveOutboxPublish(metrics.ResultSuccess, duration)
	if duration > 50*time.Millisecond {
		p.logger.Printf("outbox publish slow: duration_ms=%d event_type=%s", duration.Milliseconds(), env.EventType)
	}
	return nil
}

// Subscribe delegates to the underlying subscriber when available.
func (p *Publisher) Subscribe(eventType string, handler eventbus.EventHandler) {
	if p == nil || p.sub == nil {
		return
	}
	p.sub.Subscribe(eventType, handler)
}
