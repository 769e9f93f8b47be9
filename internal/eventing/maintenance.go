package eventing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrNotReplayable is returned when an event has no undelivered outbox record.
var ErrNotReplayable = errors.New("eventing: event not replayable")

// OutboxAdmin exposes outbox state to operators.
type OutboxAdmin interface {
	Stats(ctx context.Context) (OutboxStats, error)
	Requeue(ctx context.Context, eventID string) (bool, error)
}

// DLQReader lists and clears dead letters.
type DLQReader interface {
	List(ctx context.Context, limit int) ([]DeadLetter, error)
	Delete(ctx context.Context, eventID string) (bool, error)
}

// ProcessedPurger trims consumer idempotency markers.
type ProcessedPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Maintenance backs the operator outbox commands.
type Maintenance struct {
	outbox    OutboxAdmin
	dlq       DLQReader
	processed ProcessedPurger
	logger    *log.Logger
}

// NewMaintenance constructs a maintenance service.
func NewMaintenance(outbox OutboxAdmin, dlq DLQReader, processed ProcessedPurger, logger *log.Logger) (*Maintenance, error) {
	if outbox == nil || dlq == nil || processed == nil {
		return nil, errors.New("eventing maintenance: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Maintenance{outbox: outbox, dlq: dlq, processed: processed, logger: logger}, nil
}

// Status returns outbox counts.
func (m *Maintenance) Status(ctx context.Context) (OutboxStats, error) {
	return m.outbox.Stats(ctx)
}

// DeadLetters lists up to limit dead letters.
func (m *Maintenance) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	return m.dlq.List(ctx, limit)
}

// Replay puts a failed event back in the dispatch queue and clears its dead
// letter. The next dispatch delivers it again; consumers that already handled
// it skip it through their processed markers.
func (m *Maintenance) Replay(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("%w: empty event id", ErrNotReplayable)
	}
	ok, err := m.outbox.Requeue(ctx, eventID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotReplayable, eventID)
	}
	if _, err := m.dlq.Delete(ctx, eventID); err != nil {
		return err
	}
	m.logger.Printf("outbox replay: event_id=%s", eventID)
	return nil
}

// PurgeProcessed drops processed markers older than olderThan.
func (m *Maintenance) PurgeProcessed(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("eventing maintenance: retention must be positive")
	}
	n, err := m.processed.PurgeBefore(ctx, now.Add(-olderThan))
	if err != nil {
		return 0, err
	}
	m.logger.Printf("processed markers purged: count=%d older_than=%s", n, olderThan)
	return n, nil
}
