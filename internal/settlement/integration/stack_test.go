package integration_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/auth"
	escrowapp "marketplace-settlement/internal/escrow/application"
	escrowmemory "marketplace-settlement/internal/escrow/infrastructure/memory"
	"marketplace-settlement/internal/eventing"
	"marketplace-settlement/internal/eventing/eventbus"
	eventingmemory "marketplace-settlement/internal/eventing/infrastructure/memory"
	inventoryapp "marketplace-settlement/internal/inventory/application"
	inventorymemory "marketplace-settlement/internal/inventory/infrastructure/memory"
	milestoneapp "marketplace-settlement/internal/milestones/application"
	milestonememory "marketplace-settlement/internal/milestones/infrastructure/memory"
	orderapp "marketplace-settlement/internal/orders/application"
	orders "marketplace-settlement/internal/orders/domain"
	ordermemory "marketplace-settlement/internal/orders/infrastructure/memory"
	"marketplace-settlement/internal/pricing"
	settlementapp "marketplace-settlement/internal/settlement/application"
	settlementinterfaces "marketplace-settlement/internal/settlement/interfaces"
)

const (
	buyerID     = "buyer-1"
	installerID = "inst-1"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stack struct {
	clock       *stepClock
	ledger      *inventoryapp.Ledger
	escrow      *escrowapp.Manager
	orders      *ordermemory.Repository
	scheduler   *milestoneapp.Scheduler
	bus         *eventbus.InMemoryBus
	outbox      *eventingmemory.OutboxStore
	coordinator *settlementapp.Coordinator
}

var defaultStock = map[string]int{"panel": 10, "mount": 10, "inverter": 5, "heat-pump": 3}

func newStack(t *testing.T, stock map[string]int, opts ...settlementapp.CoordinatorOption) *stack {
	t.Helper()
	ctx := context.Background()
	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	logger := log.New(io.Discard, "", 0)

	catalog := ordermemory.NewCatalog(
		orders.Product{ID: "panel", VendorID: "vendor-x", UnitPrice: decimal.NewFromInt(200), StockOnHand: stock["panel"], VendorActive: true},
		orders.Product{ID: "mount", VendorID: "vendor-x", UnitPrice: decimal.NewFromInt(100), StockOnHand: stock["mount"], VendorActive: true},
		orders.Product{ID: "inverter", VendorID: "vendor-y", UnitPrice: decimal.NewFromInt(1500), StockOnHand: stock["inverter"], VendorActive: true},
		orders.Product{ID: "heat-pump", VendorID: "vendor-w", UnitPrice: decimal.NewFromInt(1000), StockOnHand: stock["heat-pump"], VendorActive: true},
	)
	ledger, err := inventoryapp.NewLedger(inventorymemory.NewStore(), inventoryapp.WithClock(clock), inventoryapp.WithLogger(logger))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	for product, qty := range stock {
		if err := ledger.Restock(ctx, product, qty); err != nil {
			t.Fatalf("restock %s: %v", product, err)
		}
	}
	calc, err := pricing.NewCalculator(pricing.DefaultConfig())
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	manager, err := escrowapp.NewManager(escrowmemory.NewAccountRepository(), escrowapp.WithClock(clock), escrowapp.WithLogger(logger))
	if err != nil {
		t.Fatalf("new escrow manager: %v", err)
	}
	repo := ordermemory.NewRepository()
	splitter, err := orderapp.NewSplitter(catalog, calc, ledger, manager, repo,
		orderapp.WithClock(clock), orderapp.WithLogger(logger))
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	scheduler, err := milestoneapp.NewScheduler(milestonememory.NewRepository(), settlementapp.NewPartyResolver(repo), manager,
		milestoneapp.WithClock(clock), milestoneapp.WithLogger(logger))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	bus := eventbus.NewInMemoryBus()
	outbox := eventingmemory.NewOutboxStore()
	publisher := settlementinterfaces.NewOutboxPublisher(eventing.NewPublisher(outbox, bus, logger))

	base := []settlementapp.CoordinatorOption{
		settlementapp.WithPublisher(publisher),
		settlementapp.WithClock(clock),
		settlementapp.WithLogger(logger),
	}
	coordinator, err := settlementapp.NewCoordinator(splitter, ledger, manager, scheduler, repo, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return &stack{
		clock:       clock,
		ledger:      ledger,
		escrow:      manager,
		orders:      repo,
		scheduler:   scheduler,
		bus:         bus,
		outbox:      outbox,
		coordinator: coordinator,
	}
}

func as(role auth.Role, id string) context.Context {
	return auth.WithIdentity(context.Background(), role, id)
}

func buyerCtx() context.Context { return as(auth.RoleBuyer, buyerID) }

func (s *stack) checkout(t *testing.T, req settlementapp.CheckoutRequest) settlementapp.CheckoutResult {
	t.Helper()
	result, err := s.coordinator.Checkout(buyerCtx(), req)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return result
}

func (s *stack) subOrderFor(t *testing.T, result settlementapp.CheckoutResult, vendorID string) settlementapp.PlacedSubOrder {
	t.Helper()
	for _, placed := range result.SubOrders {
		if placed.SubOrder.VendorID == vendorID {
			return placed
		}
	}
	t.Fatalf("no sub-order for %s", vendorID)
	return settlementapp.PlacedSubOrder{}
}

func (s *stack) reserved(t *testing.T, productID string) (onHand, reserved int) {
	t.Helper()
	item, err := s.ledger.Availability(context.Background(), productID)
	if err != nil {
		t.Fatalf("availability %s: %v", productID, err)
	}
	return item.OnHand, item.Reserved
}

func (s *stack) eventCount(eventType string) int {
	var n int
	for _, env := range s.outbox.Envelopes() {
		if env.EventType == eventType {
			n++
		}
	}
	return n
}

func cart(paymentType pricing.PaymentType, months int, items ...orderapp.CartItem) orderapp.Cart {
	return orderapp.Cart{BuyerID: buyerID, Items: items, PaymentType: paymentType, Months: months}
}

func item(productID string, qty int) orderapp.CartItem {
	return orderapp.CartItem{ProductID: productID, Quantity: qty}
}

func dec(value string) decimal.Decimal { return decimal.RequireFromString(value) }
