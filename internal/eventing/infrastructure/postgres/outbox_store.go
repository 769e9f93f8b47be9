package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-settlement/internal/eventing"
)

const (
	defaultOutboxTable       = "event_outbox"
	defaultOutboxMaxAttempts = 5
)

// OutboxStore persists envelopes in the outbox table.
type OutboxStore struct {
	db          *sql.DB
	table       string
	maxAttempts int
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithMaxAttempts caps redelivery of failed records.
func WithMaxAttempts(attempts int) OutboxOption {
	return func(store *OutboxStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable, maxAttempts: defaultOutboxMaxAttempts}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Insert writes an envelope to the outbox. The event id is unique, so a
// second insert of the same envelope is a no-op.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("outbox store: nil db")
	}
	if env.EventID == "" {
		return "", errors.New("outbox store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	outboxID := eventing.NewEventID()
	query := fmt.Sprintf(`
INSERT INTO %s (id, event_id, event_type, aggregate_id, payload, status, attempts, created_at)
VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6)
ON CONFLICT (event_id) DO NOTHING`, s.table)

	if _, err := s.db.ExecContext(ctx, query, outboxID, env.EventID, env.EventType, env.AggregateID, payload, time.Now().UTC()); err != nil {
		return "", err
	}
	return outboxID, nil
}

// ListPending returns up to limit undelivered records, oldest first. Failed
// records are returned again until they reach the attempt cap.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, payload
FROM %s
WHERE status = 'pending' OR (status = 'failed' AND attempts < $2)
ORDER BY created_at ASC
LIMIT $1`, s.table)

	rows, err := s.db.QueryContext(ctx, query, limit, s.maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventing.OutboxRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var env eventing.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("outbox store: decode %s: %w", id, err)
		}
		result = append(result, eventing.OutboxRecord{ID: id, Envelope: env})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkSent marks an outbox record as delivered.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	query := fmt.Sprintf(`UPDATE %s SET status = 'sent', sent_at = $1 WHERE id = $2`, s.table)
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	return err
}

// MarkFailed marks an outbox record as failed and counts the attempt.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	query := fmt.Sprintf(`UPDATE %s SET status = 'failed', attempts = attempts + 1 WHERE id = $1`, s.table)
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

// Stats counts records by delivery state.
func (s *OutboxStore) Stats(ctx context.Context) (eventing.OutboxStats, error) {
	if s == nil || s.db == nil {
		return eventing.OutboxStats{}, errors.New("outbox store: nil db")
	}
	query := fmt.Sprintf(`
SELECT
	COUNT(*) FILTER (WHERE status = 'pending'),
	COUNT(*) FILTER (WHERE status = 'failed' AND attempts < $1),
	COUNT(*) FILTER (WHERE status = 'failed' AND attempts >= $1),
	COUNT(*) FILTER (WHERE status = 'sent')
FROM %s`, s.table)
	var stats eventing.OutboxStats
	if err := s.db.QueryRowContext(ctx, query, s.maxAttempts).Scan(&stats.Pending, &stats.Failed, &stats.Exhausted, &stats.Sent); err != nil {
		return eventing.OutboxStats{}, fmt.Errorf("outbox store: stats: %w", err)
	}
	return stats, nil
}

// Requeue resets the record of eventID to pending with a fresh attempt
// budget. Delivered records are left alone. It reports whether a record was
// requeued.
func (s *OutboxStore) Requeue(ctx context.Context, eventID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("outbox store: nil db")
	}
	query := fmt.Sprintf(`UPDATE %s SET status = 'pending', attempts = 0 WHERE event_id = $1 AND status <> 'sent'`, s.table)
	res, err := s.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return false, fmt.Errorf("outbox store: requeue %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
