package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultProcessedTable = "processed_events"

// ProcessedStore records which consumer has handled which event. Rows are
// kept until PurgeBefore drops them.
type ProcessedStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// ProcessedOption configures the processed store.
type ProcessedOption func(*ProcessedStore)

// WithProcessedTable overrides table name.
func WithProcessedTable(table string) ProcessedOption {
	return func(store *ProcessedStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithProcessedClock overrides the time source for processed_at.
func WithProcessedClock(now func() time.Time) ProcessedOption {
	return func(store *ProcessedStore) {
		if now != nil {
			store.now = now
		}
	}
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore(db *sql.DB, opts ...ProcessedOption) *ProcessedStore {
	store := &ProcessedStore{db: db, table: defaultProcessedTable, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *ProcessedStore) check(eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: event id and consumer are required")
	}
	return nil
}

// HasProcessed reports whether consumerName already handled eventID.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if err := s.check(eventID, consumerName); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE event_id = $1 AND consumer_name = $2)`, s.table)
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, eventID, consumerName).Scan(&exists); err != nil {
		return false, fmt.Errorf("processed store: lookup %s/%s: %w", consumerName, eventID, err)
	}
	return exists, nil
}

// MarkProcessed records eventID for consumerName. Marking twice is a no-op.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if err := s.check(eventID, consumerName); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, consumer_name, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, consumer_name) DO NOTHING`, s.table)
	if _, err := s.db.ExecContext(ctx, query, eventID, consumerName, s.now().UTC()); err != nil {
		return fmt.Errorf("processed store: mark %s/%s: %w", consumerName, eventID, err)
	}
	return nil
}

// PurgeBefore deletes markers older than cutoff and returns how many went.
// An event redelivered after its marker is purged runs its consumers again,
// so cutoff must stay well behind the outbox retry horizon.
func (s *ProcessedStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("processed store: nil db")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE processed_at < $1`, s.table)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("processed store: purge: %w", err)
	}
	return res.RowsAffected()
}
