package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"marketplace-settlement/internal/eventing"
	"marketplace-settlement/internal/eventing/eventbus"
	eventingrepo "marketplace-settlement/internal/eventing/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type payoutQueued struct {
	SubOrderID string
	OccurredAt time.Time
}

func TestOutbox_IdempotentConsumerPostgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "event_outbox") || !tableExists(db, "processed_events") || !tableExists(db, "dead_letter_events") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")

	bus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(payoutQueued{})

	outbox := eventingrepo.NewOutboxStore(db)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, eventingrepo.NewDLQStore(db), nil)
	publisher := eventing.NewPublisher(outbox, bus, nil)

	count := 0
	eventing.Subscribe(bus, eventbus.EventTypeOf[payoutQueued](), "consumer-a", func(ctx context.Context, event any) error {
		count++
		return nil
	}, eventingrepo.NewProcessedStore(db))

	ctx = eventing.WithEventID(ctx, "evt-dup-001")
	event := payoutQueued{SubOrderID: "so-1", OccurredAt: time.Now().UTC()}
	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}
	if _, err := dispatcher.Dispatch(ctx, 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected handler once, got %d", count)
	}
}

func TestOutbox_MaintenancePostgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if !tableExists(db, "event_outbox") || !tableExists(db, "processed_events") || !tableExists(db, "dead_letter_events") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")

	outbox := eventingrepo.NewOutboxStore(db, eventingrepo.WithMaxAttempts(1))
	dlq := eventingrepo.NewDLQStore(db)
	processed := eventingrepo.NewProcessedStore(db, eventingrepo.WithProcessedClock(func() time.Time {
		return time.Now().Add(-48 * time.Hour)
	}))
	maint, err := eventing.NewMaintenance(outbox, dlq, processed, nil)
	if err != nil {
		t.Fatalf("new maintenance: %v", err)
	}

	// No registered types: the record fails to decode and is dead-lettered.
	dispatcher := eventing.NewDispatcher(eventbus.NewInMemoryBus(), outbox, eventing.NewRegistry(), dlq, nil)
	publisher := eventing.NewPublisher(outbox, nil, nil)
	if err := publisher.Publish(eventing.WithEventID(ctx, "evt-dlq-001"), payoutQueued{SubOrderID: "so-9"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result, err := dispatcher.Dispatch(ctx, 10); err != nil || result.DLQ != 1 {
		t.Fatalf("expected dead-lettered record, got %+v err=%v", result, err)
	}

	stats, err := maint.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if stats.Exhausted != 1 {
		t.Fatalf("expected exhausted record, got %+v", stats)
	}
	letters, err := maint.DeadLetters(ctx, 10)
	if err != nil || len(letters) != 1 || letters[0].Envelope.AggregateID != "so-9" {
		t.Fatalf("unexpected dead letters %+v err=%v", letters, err)
	}
	if err := maint.Replay(ctx, "evt-dlq-001"); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if stats, _ := maint.Status(ctx); stats.Pending != 1 {
		t.Fatalf("expected requeued record pending, got %+v", stats)
	}

	if err := processed.MarkProcessed(ctx, "evt-old", "consumer-a"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	n, err := maint.PurgeProcessed(ctx, 24*time.Hour, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("expected one purged marker, got n=%d err=%v", n, err)
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
	return err == nil && exists
}
