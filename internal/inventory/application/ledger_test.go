package application_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketplace-settlement/internal/inventory/application"
	inventory "marketplace-settlement/internal/inventory/domain"
	"marketplace-settlement/internal/inventory/infrastructure/memory"
	"marketplace-settlement/internal/kernel"
)

func TestLedger_ReserveReleaseCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := newLedger(t, store, &mutableClock{now: baseTime()})
	if err := ledger.Restock(ctx, "prod-1", 5); err != nil {
		t.Fatalf("restock: %v", err)
	}

	first, err := ledger.Reserve(ctx, "prod-1", "so-1", 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := ledger.Reserve(ctx, "prod-1", "so-2", 3); !errors.Is(err, kernel.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if err := ledger.Release(ctx, first.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := ledger.Release(ctx, first.ID); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
	item, _ := ledger.Availability(ctx, "prod-1")
	if item.Reserved != 0 || item.OnHand != 5 {
		t.Fatalf("unexpected item after release: %+v", item)
	}

	second, err := ledger.Reserve(ctx, "prod-1", "so-2", 4)
	if err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	if err := ledger.Commit(ctx, second.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := ledger.Commit(ctx, second.ID); err != nil {
		t.Fatalf("second commit should be a no-op: %v", err)
	}
	item, _ = ledger.Availability(ctx, "prod-1")
	if item.OnHand != 1 || item.Reserved != 0 {
		t.Fatalf("unexpected item after commit: %+v", item)
	}

	if err := ledger.Commit(ctx, first.ID); !errors.Is(err, kernel.ErrInvalidStateTransition) {
		t.Fatalf("committing a released reservation must fail, got %v", err)
	}
}

func TestLedger_UnknownProductHasNoStock(t *testing.T) {
	ledger := newLedger(t, memory.NewStore(), &mutableClock{now: baseTime()})
	if _, err := ledger.Reserve(context.Background(), "missing", "so-1", 1); !errors.Is(err, kernel.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := newLedger(t, store, &mutableClock{now: baseTime()})
	if err := ledger.Restock(ctx, "prod-hot", 10); err != nil {
		t.Fatalf("restock: %v", err)
	}

	var wg sync.WaitGroup
	var ok int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Reserve(ctx, "prod-hot", kernel.NewID("so"), 1); err == nil {
				atomic.AddInt64(&ok, 1)
			}
		}()
	}
	wg.Wait()

	if ok != 10 {
		t.Fatalf("expected exactly 10 successful reservations, got %d", ok)
	}
	for _, item := range store.Items() {
		if !item.Valid() {
			t.Fatalf("invariant violated: %+v", item)
		}
	}
}

func TestLedger_ExpireStaleRespectsGuard(t *testing.T) {
	ctx := context.Background()
	clock := &mutableClock{now: baseTime()}
	store := memory.NewStore()
	ledger := newLedger(t, store, clock)
	if err := ledger.Restock(ctx, "prod-1", 10); err != nil {
		t.Fatalf("restock: %v", err)
	}

	if _, err := ledger.Reserve(ctx, "prod-1", "so-abandoned", 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := ledger.Reserve(ctx, "prod-1", "so-funded", 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	clock.Advance(10 * time.Minute)
	released, err := ledger.ExpireStale(ctx, guardFunc(func(string) bool { return true }))
	if err != nil {
		t.Fatalf("sweep before ttl: %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("nothing should expire before ttl, got %d", len(released))
	}

	clock.Advance(6 * time.Minute)
	released, err = ledger.ExpireStale(ctx, guardFunc(func(subOrderID string) bool { return subOrderID != "so-funded" }))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(released) != 1 || released[0].SubOrderID != "so-abandoned" {
		t.Fatalf("expected only the abandoned reservation to expire, got %+v", released)
	}
	item, _ := ledger.Availability(ctx, "prod-1")
	if item.Reserved != 3 {
		t.Fatalf("funded reservation must stay reserved, got %+v", item)
	}

	list, _ := ledger.Reservations(ctx, "so-abandoned")
	if len(list) != 1 || list[0].Status != inventory.ReservationExpired {
		t.Fatalf("expected expired status, got %+v", list)
	}
}

func TestLedger_ReleaseForSubOrder(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t, memory.NewStore(), &mutableClock{now: baseTime()})
	_ = ledger.Restock(ctx, "prod-1", 4)
	_ = ledger.Restock(ctx, "prod-2", 4)
	if _, err := ledger.Reserve(ctx, "prod-1", "so-1", 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := ledger.Reserve(ctx, "prod-2", "so-1", 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	released, err := ledger.ReleaseForSubOrder(ctx, "so-1")
	if err != nil {
		t.Fatalf("release for sub-order: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 released, got %d", released)
	}
	again, err := ledger.ReleaseForSubOrder(ctx, "so-1")
	if err != nil || again != 0 {
		t.Fatalf("second release should do nothing: n=%d err=%v", again, err)
	}
}

func TestLedger_ConcurrentReleasesCountOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := newLedger(t, store, &mutableClock{now: baseTime()})
	_ = ledger.Restock(ctx, "prod-1", 4)
	_ = ledger.Restock(ctx, "prod-2", 4)
	if _, err := ledger.Reserve(ctx, "prod-1", "so-1", 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := ledger.Reserve(ctx, "prod-2", "so-1", 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var wg sync.WaitGroup
	var total int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := ledger.ReleaseForSubOrder(ctx, "so-1")
			if err != nil {
				t.Errorf("release for sub-order: %v", err)
				return
			}
			atomic.AddInt64(&total, int64(n))
		}()
	}
	wg.Wait()

	if total != 2 {
		t.Fatalf("expected 2 releases across all callers, got %d", total)
	}
	for _, item := range store.Items() {
		if item.Reserved != 0 || !item.Valid() {
			t.Fatalf("unexpected item after releases: %+v", item)
		}
	}
}

func TestStore_ReleaseReportsTransition(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := newLedger(t, store, &mutableClock{now: baseTime()})
	_ = ledger.Restock(ctx, "prod-1", 2)
	res, err := ledger.Reserve(ctx, "prod-1", "so-1", 1)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, changed, err := store.Release(ctx, res.ID, inventory.ReservationReleased, baseTime()); err != nil || !changed {
		t.Fatalf("first release: changed=%v err=%v", changed, err)
	}
	after, changed, err := store.Release(ctx, res.ID, inventory.ReservationExpired, baseTime())
	if err != nil || changed {
		t.Fatalf("second release: changed=%v err=%v", changed, err)
	}
	if after.Status != inventory.ReservationReleased {
		t.Fatalf("status overwritten: %s", after.Status)
	}
}

func TestLedger_RetriesContention(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.NewStore(), failures: 2}
	ledger := newLedger(t, store, &mutableClock{now: baseTime()})
	_ = ledger.Restock(ctx, "prod-1", 1)
	if _, err := ledger.Reserve(ctx, "prod-1", "so-1", 1); err != nil {
		t.Fatalf("reserve should succeed after retries: %v", err)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 reserve calls, got %d", store.calls)
	}
}

func newLedger(t *testing.T, store inventory.Store, clock kernel.Clock) *application.Ledger {
	t.Helper()
	ledger, err := application.NewLedger(store, application.WithClock(clock))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func baseTime() time.Time {
	return time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
}

type mutableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mutableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type guardFunc func(subOrderID string) bool

func (f guardFunc) CanExpire(ctx context.Context, subOrderID string) (bool, error) {
	_ = ctx
	return f(subOrderID), nil
}

type flakyStore struct {
	*memory.Store
	failures int
	calls    int
}

func (s *flakyStore) Reserve(ctx context.Context, reservation inventory.Reservation) error {
	s.calls++
	if s.calls <= s.failures {
		return kernel.ErrResourceContention
	}
	return s.Store.Reserve(ctx, reservation)
}
