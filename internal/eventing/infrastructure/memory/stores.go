package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"marketplace-settlement/internal/eventing"
)

const defaultMaxAttempts = 5

type outboxRow struct {
	id        string
	env       eventing.Envelope
	status    string
	attempts  int
	createdAt time.Time
	seq       int
}

// OutboxStore is an in-memory outbox.
type OutboxStore struct {
	mu          sync.Mutex
	rows        map[string]*outboxRow
	byEvent     map[string]string
	seq         int
	maxAttempts int
}

// NewOutboxStore constructs an in-memory outbox.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{
		rows:        make(map[string]*outboxRow),
		byEvent:     make(map[string]string),
		maxAttempts: defaultMaxAttempts,
	}
}

// Insert stores an envelope; a repeated event id returns the existing record id.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	_ = ctx
	if env.EventID == "" {
		return "", errors.New("outbox store: empty event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEvent[env.EventID]; ok {
		return id, nil
	}
	s.seq++
	id := eventing.NewEventID()
	s.rows[id] = &outboxRow{id: id, env: env, status: "pending", createdAt: time.Now().UTC(), seq: s.seq}
	s.byEvent[env.EventID] = id
	return id, nil
}

// ListPending returns undelivered records in insertion order.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]*outboxRow, 0, len(s.rows))
	for _, row := range s.rows {
		if row.status == "pending" || (row.status == "failed" && row.attempts < s.maxAttempts) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	result := make([]eventing.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, eventing.OutboxRecord{ID: row.id, Envelope: row.env})
	}
	return result, nil
}

// MarkSent marks a record delivered.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return errors.New("outbox store: unknown record")
	}
	row.status = "sent"
	return nil
}

// MarkFailed marks a record failed and counts the attempt.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return errors.New("outbox store: unknown record")
	}
	row.status = "failed"
	row.attempts++
	return nil
}

// Envelopes returns every stored envelope in insertion order.
func (s *OutboxStore) Envelopes() []eventing.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]*outboxRow, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]eventing.Envelope, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.env)
	}
	return out
}

// Stats counts records by delivery state.
func (s *OutboxStore) Stats(ctx context.Context) (eventing.OutboxStats, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats eventing.OutboxStats
	for _, row := range s.rows {
		switch {
		case row.status == "pending":
			stats.Pending++
		case row.status == "sent":
			stats.Sent++
		case row.attempts < s.maxAttempts:
			stats.Failed++
		default:
			stats.Exhausted++
		}
	}
	return stats, nil
}

// Requeue resets an undelivered record to pending with a fresh attempt budget.
func (s *OutboxStore) Requeue(ctx context.Context, eventID string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEvent[eventID]
	if !ok {
		return false, nil
	}
	row := s.rows[id]
	if row.status == "sent" {
		return false, nil
	}
	row.status = "pending"
	row.attempts = 0
	return true, nil
}

// ProcessedStore is an in-memory idempotency store.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[string]time.Time)}
}

// HasProcessed reports whether the consumer already handled the event.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[consumerName+"|"+eventID]
	return ok, nil
}

// MarkProcessed records the event for the consumer.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	key := consumerName + "|" + eventID
	if _, ok := s.seen[key]; !ok {
		s.seen[key] = time.Now().UTC()
	}
	return nil
}

// PurgeBefore drops markers recorded before cutoff.
func (s *ProcessedStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, key)
			n++
		}
	}
	return n, nil
}

// DLQStore is an in-memory dead letter queue.
type DLQStore struct {
	mu      sync.Mutex
	letters map[string]*eventing.DeadLetter
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore() *DLQStore {
	return &DLQStore{letters: make(map[string]*eventing.DeadLetter)}
}

// RecordFailure upserts the dead letter for the event.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, err error) error {
	_ = ctx
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	message := ""
	if err != nil {
		message = err.Error()
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	letter, ok := s.letters[env.EventID]
	if !ok {
		letter = &eventing.DeadLetter{EventID: env.EventID, EventType: env.EventType, Envelope: env, FirstSeenAt: now}
		s.letters[env.EventID] = letter
	}
	letter.Error = message
	letter.Attempts++
	letter.LastSeenAt = now
	return nil
}

// List returns up to limit dead letters, most recently failed first.
func (s *DLQStore) List(ctx context.Context, limit int) ([]eventing.DeadLetter, error) {
	letters := s.Letters()
	sort.Slice(letters, func(i, j int) bool {
		if !letters[i].LastSeenAt.Equal(letters[j].LastSeenAt) {
			return letters[i].LastSeenAt.After(letters[j].LastSeenAt)
		}
		return letters[i].EventID < letters[j].EventID
	})
	if limit > 0 && len(letters) > limit {
		letters = letters[:limit]
	}
	return letters, nil
}

// Delete drops the dead letter of eventID.
func (s *DLQStore) Delete(ctx context.Context, eventID string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.letters[eventID]
	delete(s.letters, eventID)
	return ok, nil
}

// Letters returns a copy of the dead letters.
func (s *DLQStore) Letters() []eventing.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]eventing.DeadLetter, 0, len(s.letters))
	for _, letter := range s.letters {
		out = append(out, *letter)
	}
	return out
}
