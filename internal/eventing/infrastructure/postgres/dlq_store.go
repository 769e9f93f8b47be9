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

const defaultDLQTable = "dead_letter_events"

// DLQStore keeps envelopes whose delivery failed, one row per event.
type DLQStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// DLQOption configures the DLQ store.
type DLQOption func(*DLQStore)

// WithDLQTable overrides the table name.
func WithDLQTable(table string) DLQOption {
	return func(store *DLQStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithDLQClock overrides the time source for first/last seen.
func WithDLQClock(now func() time.Time) DLQOption {
	return func(store *DLQStore) {
		if now != nil {
			store.now = now
		}
	}
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore(db *sql.DB, opts ...DLQOption) *DLQStore {
	store := &DLQStore{db: db, table: defaultDLQTable, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// RecordFailure upserts the dead letter row and bumps its attempt count.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (event_id, event_type, payload, error, first_seen_at, last_seen_at, attempts)
VALUES ($1, $2, $3, $4, $5, $5, 1)
ON CONFLICT (event_id) DO UPDATE SET
	error = EXCLUDED.error,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %s.attempts + 1`, s.table, s.table)

	if _, err := s.db.ExecContext(ctx, query, env.EventID, env.EventType, payload, message, s.now().UTC()); err != nil {
		return fmt.Errorf("dlq store: record %s: %w", env.EventID, err)
	}
	return nil
}

// List returns up to limit dead letters, most recently failed first.
func (s *DLQStore) List(ctx context.Context, limit int) ([]eventing.DeadLetter, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("dlq store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT event_id, event_type, payload, error, attempts, first_seen_at, last_seen_at
FROM %s
ORDER BY last_seen_at DESC, event_id
LIMIT $1`, s.table)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("dlq store: list: %w", err)
	}
	defer rows.Close()

	var letters []eventing.DeadLetter
	for rows.Next() {
		var letter eventing.DeadLetter
		var payload []byte
		if err := rows.Scan(&letter.EventID, &letter.EventType, &payload, &letter.Error, &letter.Attempts, &letter.FirstSeenAt, &letter.LastSeenAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &letter.Envelope); err != nil {
			return nil, fmt.Errorf("dlq store: decode %s: %w", letter.EventID, err)
		}
		letters = append(letters, letter)
	}
	return letters, rows.Err()
}

// Delete drops the dead letter of eventID. It reports whether a row existed.
func (s *DLQStore) Delete(ctx context.Context, eventID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("dlq store: nil db")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE event_id = $1`, s.table)
	res, err := s.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return false, fmt.Errorf("dlq store: delete %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
