package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	"marketplace-settlement/internal/eventing"
	"marketplace-settlement/internal/eventing/eventbus"
	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/observability/metrics"
	settlement "marketplace-settlement/internal/settlement/domain"
)

// Event names used in messages and metrics.
const (
	EventOrderCreated      = "order_created"
	EventMilestoneVerified = "milestone_verified"
	EventRefundIssued      = "refund_issued"
)

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders settlement events and sends them through a channel.
type Notifier struct {
	channel      Channel
	templates    Templates
	clock        kernel.Clock
	logger       *log.Logger
	dedupeWindow time.Duration
	mu           sync.Mutex
	sent         map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock kernel.Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithTemplates overrides the message templates.
func WithTemplates(templates Templates) Option {
	return func(n *Notifier) {
		if templates.OrderCreated != nil {
			n.templates.OrderCreated = templates.OrderCreated
		}
		if templates.MilestoneVerified != nil {
			n.templates.MilestoneVerified = templates.MilestoneVerified
		}
		if templates.RefundIssued != nil {
			n.templates.RefundIssued = templates.RefundIssued
		}
	}
}

// WithDedupeWindow suppresses identical messages for the same subject within
// the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs a notifier.
func NewNotifier(channel Channel, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("notifier: nil channel")
	}
	templates, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}
	n := &Notifier{
		channel:   channel,
		templates: templates,
		clock:     kernel.SystemClock{},
		logger:    log.Default(),
		sent:      make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// HandleOrderCreated notifies the vendor of a new sub-order.
func (n *Notifier) HandleOrderCreated(ctx context.Context, event settlement.OrderCreated) error {
	return n.dispatch(ctx, EventOrderCreated, event.SubOrderID, event.VendorID, "New order "+event.SubOrderID, n.templates.OrderCreated, event)
}

// HandleMilestoneVerified notifies the payee of a milestone release.
func (n *Notifier) HandleMilestoneVerified(ctx context.Context, event settlement.MilestoneVerified) error {
	return n.dispatch(ctx, EventMilestoneVerified, event.MilestoneID, event.RecipientID, "Milestone "+event.MilestoneID+" verified", n.templates.MilestoneVerified, event)
}

// HandleRefundIssued notifies the buyer of a refund.
func (n *Notifier) HandleRefundIssued(ctx context.Context, event settlement.RefundIssued) error {
	return n.dispatch(ctx, EventRefundIssued, event.SubOrderID+"|"+event.OccurredAt.Format(time.RFC3339Nano), event.BuyerID, "Refund for "+event.SubOrderID, n.templates.RefundIssued, event)
}

// Subscribe registers the notifier on the bus for all settlement events.
// Handlers are idempotent per event id when store is set.
func (n *Notifier) Subscribe(bus eventbus.EventBus, store eventing.ProcessedStore) {
	if n == nil || bus == nil {
		return
	}
	eventing.Subscribe(bus, eventbus.EventTypeOf[settlement.OrderCreated](), "notify.order_created", func(ctx context.Context, event any) error {
		evt, ok := event.(settlement.OrderCreated)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return n.HandleOrderCreated(ctx, evt)
	}, store)
	eventing.Subscribe(bus, eventbus.EventTypeOf[settlement.MilestoneVerified](), "notify.milestone_verified", func(ctx context.Context, event any) error {
		evt, ok := event.(settlement.MilestoneVerified)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return n.HandleMilestoneVerified(ctx, evt)
	}, store)
	eventing.Subscribe(bus, eventbus.EventTypeOf[settlement.RefundIssued](), "notify.refund_issued", func(ctx context.Context, event any) error {
		evt, ok := event.(settlement.RefundIssued)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return n.HandleRefundIssued(ctx, evt)
	}, store)
}

func (n *Notifier) dispatch(ctx context.Context, eventName, subject, recipient, title string, tpl *Template, data any) error {
	content, err := tpl.Render(data)
	if err != nil {
		metrics.IncNotification(eventName, metrics.ResultError)
		return err
	}
	key := eventName + "|" + subject
	if !n.shouldSend(key, content) {
		n.logger.Printf("notification suppressed: event=%s subject=%s", eventName, subject)
		return nil
	}
	msg := Message{
		EventType: eventName,
		Subject:   title,
		Recipient: recipient,
		Content:   content,
		Data:      data,
		SentAt:    n.clock.Now().UTC(),
	}
	if env, ok := eventing.EnvelopeFromContext(ctx); ok {
		msg.EventID = env.EventID
	}
	if err := n.channel.Send(ctx, msg); err != nil {
		metrics.IncNotification(eventName, metrics.ResultError)
		n.logger.Printf("notification failed: event=%s subject=%s err=%v", eventName, subject, err)
		return err
	}
	n.markSent(key, content)
	metrics.IncNotification(eventName, metrics.ResultSuccess)
	return nil
}

func (n *Notifier) shouldSend(key, content string) bool {
	if n.dedupeWindow <= 0 {
		return true
	}
	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	return record.hash != hashContent(content) || n.clock.Now().Sub(record.at) >= n.dedupeWindow
}

func (n *Notifier) markSent(key, content string) {
	if n.dedupeWindow <= 0 {
		return
	}
	n.mu.Lock()
	n.sent[key] = sendRecord{at: n.clock.Now().UTC(), hash: hashContent(content)}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}
