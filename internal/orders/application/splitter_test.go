package application_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	escrowapp "marketplace-settlement/internal/escrow/application"
	escrow "marketplace-settlement/internal/escrow/domain"
	escrowmemory "marketplace-settlement/internal/escrow/infrastructure/memory"
	inventoryapp "marketplace-settlement/internal/inventory/application"
	inventorymemory "marketplace-settlement/internal/inventory/infrastructure/memory"
	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/orders/application"
	orders "marketplace-settlement/internal/orders/domain"
	"marketplace-settlement/internal/orders/infrastructure/memory"
	"marketplace-settlement/internal/pricing"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type failingOpener struct{ err error }

func (o failingOpener) Open(ctx context.Context, subOrderID string, total decimal.Decimal) (escrow.Snapshot, error) {
	return escrow.Snapshot{}, o.err
}

func (o failingOpener) Void(ctx context.Context, accountID string) (escrow.Snapshot, error) {
	return escrow.Snapshot{}, o.err
}

// flakyRepository fails order saves, or sub-order saves for one vendor.
type flakyRepository struct {
	*memory.Repository
	orderErr  error
	vendorID  string
	vendorErr error
}

func (r *flakyRepository) SaveOrder(ctx context.Context, order *orders.Order) error {
	if r.orderErr != nil {
		return r.orderErr
	}
	return r.Repository.SaveOrder(ctx, order)
}

func (r *flakyRepository) SaveSubOrder(ctx context.Context, sub *orders.SubOrder) error {
	if r.vendorErr != nil && sub.VendorID() == r.vendorID {
		return r.vendorErr
	}
	return r.Repository.SaveSubOrder(ctx, sub)
}

type splitFixture struct {
	splitter *application.Splitter
	ledger   *inventoryapp.Ledger
	repo     *memory.Repository
	accounts *escrowmemory.AccountRepository
}

func newSplitFixture(t *testing.T, stock map[string]int, opener application.EscrowOpener) splitFixture {
	t.Helper()
	return newSplitFixtureWithRepo(t, stock, opener, nil)
}

func newSplitFixtureWithRepo(t *testing.T, stock map[string]int, opener application.EscrowOpener, flaky *flakyRepository) splitFixture {
	t.Helper()
	ctx := context.Background()
	clock := fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	logger := log.New(io.Discard, "", 0)

	catalog := memory.NewCatalog(
		orders.Product{ID: "panel", VendorID: "vendor-x", UnitPrice: decimal.NewFromInt(200), StockOnHand: stock["panel"], VendorActive: true},
		orders.Product{ID: "mount", VendorID: "vendor-x", UnitPrice: decimal.NewFromInt(100), StockOnHand: stock["mount"], VendorActive: true},
		orders.Product{ID: "inverter", VendorID: "vendor-y", UnitPrice: decimal.NewFromInt(1500), StockOnHand: stock["inverter"], VendorActive: true},
		orders.Product{ID: "battery", VendorID: "vendor-z", UnitPrice: decimal.NewFromInt(900), StockOnHand: 5, VendorActive: false},
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
	accounts := escrowmemory.NewAccountRepository()
	if opener == nil {
		manager, err := escrowapp.NewManager(accounts, escrowapp.WithClock(clock), escrowapp.WithLogger(logger))
		if err != nil {
			t.Fatalf("new escrow manager: %v", err)
		}
		opener = manager
	}
	repo := memory.NewRepository()
	var store orders.Repository = repo
	if flaky != nil {
		flaky.Repository = repo
		store = flaky
	}
	splitter, err := application.NewSplitter(catalog, calc, ledger, opener, store,
		application.WithClock(clock), application.WithLogger(logger))
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	return splitFixture{splitter: splitter, ledger: ledger, repo: repo, accounts: accounts}
}

func twoVendorCart() application.Cart {
	return application.Cart{
		BuyerID: "buyer-1",
		Items: []application.CartItem{
			{ProductID: "panel", VendorID: "vendor-x", Quantity: 2},
			{ProductID: "mount", Quantity: 1},
			{ProductID: "inverter", VendorID: "vendor-y", Quantity: 1},
		},
		PaymentType: pricing.PaymentFull,
	}
}

func TestSplitGroupsByVendor(t *testing.T) {
	ctx := context.Background()
	f := newSplitFixture(t, map[string]int{"panel": 5, "mount": 5, "inverter": 2}, nil)

	result, err := f.splitter.Split(ctx, twoVendorCart())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(result.SubOrders) != 2 || len(result.Failures) != 0 {
		t.Fatalf("expected 2 sub-orders, got %d (failures %d)", len(result.SubOrders), len(result.Failures))
	}
	x, y := result.SubOrders[0], result.SubOrders[1]
	if x.VendorID() != "vendor-x" || y.VendorID() != "vendor-y" {
		t.Fatalf("unexpected vendor order: %s, %s", x.VendorID(), y.VendorID())
	}
	if !x.Total().Equal(decimal.NewFromInt(500)) || !y.Total().Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected totals: x=%s y=%s", x.Total(), y.Total())
	}
	for _, sub := range result.SubOrders {
		if sub.Status() != orders.StatusPending {
			t.Fatalf("expected pending, got %s", sub.Status())
		}
		acct, err := f.accounts.GetBySubOrder(ctx, sub.ID())
		if err != nil || acct == nil {
			t.Fatalf("escrow account missing for %s: %v", sub.ID(), err)
		}
		if acct.Status() != escrow.StatusCreated || acct.ID() != sub.EscrowAccountID() {
			t.Fatalf("unexpected account %s status %s", acct.ID(), acct.Status())
		}
	}

	stored, err := f.repo.FindOrder(ctx, result.Order.ID)
	if err != nil || stored == nil {
		t.Fatalf("parent order not stored: %v", err)
	}
	if len(stored.SubOrderIDs) != 2 {
		t.Fatalf("expected 2 sub-order ids, got %d", len(stored.SubOrderIDs))
	}
	item, _ := f.ledger.Availability(ctx, "panel")
	if item.Reserved != 2 {
		t.Fatalf("expected 2 panels reserved, got %d", item.Reserved)
	}
}

func TestSplitFailsOnlyTheShortVendorGroup(t *testing.T) {
	ctx := context.Background()
	f := newSplitFixture(t, map[string]int{"panel": 1, "mount": 5, "inverter": 2}, nil)
	cart := twoVendorCart()
	cart.Items = []application.CartItem{
		{ProductID: "mount", VendorID: "vendor-x", Quantity: 1},
		{ProductID: "panel", VendorID: "vendor-x", Quantity: 2},
		{ProductID: "inverter", VendorID: "vendor-y", Quantity: 1},
	}

	result, err := f.splitter.Split(ctx, cart)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].VendorID != "vendor-x" {
		t.Fatalf("expected vendor-x failure, got %+v", result.Failures)
	}
	if !errors.Is(result.Failures[0].Err, kernel.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", result.Failures[0].Err)
	}
	if len(result.SubOrders) != 1 || result.SubOrders[0].VendorID() != "vendor-y" {
		t.Fatalf("expected vendor-y sub-order only")
	}
	mount, _ := f.ledger.Availability(ctx, "mount")
	if mount.Reserved != 0 {
		t.Fatalf("mount reservation leaked: %d", mount.Reserved)
	}
}

func TestSplitRejectsInvalidQuantity(t *testing.T) {
	ctx := context.Background()
	f := newSplitFixture(t, map[string]int{"panel": 5, "mount": 5}, nil)
	cart := application.Cart{
		BuyerID: "buyer-1",
		Items: []application.CartItem{
			{ProductID: "mount", VendorID: "vendor-x", Quantity: 2},
			{ProductID: "panel", VendorID: "vendor-x", Quantity: 0},
		},
		PaymentType: pricing.PaymentFull,
	}
	_, err := f.splitter.Split(ctx, cart)
	if !errors.Is(err, pricing.ErrInvalidLineItem) {
		t.Fatalf("expected invalid line item, got %v", err)
	}
	mount, _ := f.ledger.Availability(ctx, "mount")
	if mount.Reserved != 0 {
		t.Fatalf("unexpected reservation: %d", mount.Reserved)
	}
}

func TestSplitAllGroupsFail(t *testing.T) {
	ctx := context.Background()
	f := newSplitFixture(t, map[string]int{"panel": 0, "inverter": 0}, nil)
	cart := application.Cart{
		BuyerID: "buyer-1",
		Items: []application.CartItem{
			{ProductID: "panel", VendorID: "vendor-x", Quantity: 1},
			{ProductID: "battery", VendorID: "vendor-z", Quantity: 1},
		},
		PaymentType: pricing.PaymentFull,
	}
	result, err := f.splitter.Split(ctx, cart)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, kernel.ErrInsufficientStock) || !errors.Is(err, kernel.ErrVendorUnavailable) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if result.Order != nil || len(result.Failures) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if subs, _ := f.repo.ListByVendor(ctx, "vendor-x"); len(subs) != 0 {
		t.Fatalf("failed group stored %d sub-orders", len(subs))
	}
	if accounts := f.accounts.List(); len(accounts) != 0 {
		t.Fatalf("failed groups opened %d escrow accounts", len(accounts))
	}
}

func TestSplitEmptyCart(t *testing.T) {
	f := newSplitFixture(t, nil, nil)
	_, err := f.splitter.Split(context.Background(), application.Cart{BuyerID: "buyer-1", PaymentType: pricing.PaymentFull})
	if !errors.Is(err, kernel.ErrEmptyCart) {
		t.Fatalf("expected empty cart, got %v", err)
	}
}

func TestSplitUnknownProduct(t *testing.T) {
	f := newSplitFixture(t, map[string]int{"inverter": 1}, nil)
	result, err := f.splitter.Split(context.Background(), application.Cart{
		BuyerID: "buyer-1",
		Items: []application.CartItem{
			{ProductID: "ghost", VendorID: "vendor-q", Quantity: 1},
			{ProductID: "inverter", VendorID: "vendor-y", Quantity: 1},
		},
		PaymentType: pricing.PaymentFull,
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(result.Failures) != 1 || !errors.Is(result.Failures[0].Err, kernel.ErrVendorUnavailable) {
		t.Fatalf("expected vendor unavailable failure, got %+v", result.Failures)
	}
}

func TestSplitCompensatesWhenEscrowFails(t *testing.T) {
	ctx := context.Background()
	f := newSplitFixture(t, map[string]int{"inverter": 2}, failingOpener{err: kernel.ErrResourceContention})
	_, err := f.splitter.Split(ctx, application.Cart{
		BuyerID:     "buyer-1",
		Items:       []application.CartItem{{ProductID: "inverter", VendorID: "vendor-y", Quantity: 1}},
		PaymentType: pricing.PaymentFull,
	})
	if !errors.Is(err, kernel.ErrResourceContention) {
		t.Fatalf("expected contention, got %v", err)
	}
	item, _ := f.ledger.Availability(ctx, "inverter")
	if item.Reserved != 0 {
		t.Fatalf("reservation leaked: %d", item.Reserved)
	}
	subs, _ := f.repo.ListByVendor(ctx, "vendor-y")
	if len(subs) != 0 {
		t.Fatalf("rolled back sub-order was stored: %d", len(subs))
	}
}

func assertVoided(t *testing.T, accounts []*escrow.Account, want int) {
	t.Helper()
	if len(accounts) != want {
		t.Fatalf("expected %d escrow accounts, got %d", want, len(accounts))
	}
	for _, acct := range accounts {
		if acct.Status() != escrow.StatusRefunded || !acct.Held().IsZero() {
			t.Fatalf("account %s left %s holding %s", acct.ID(), acct.Status(), acct.Held())
		}
	}
}

func TestSplitVoidsEscrowWhenOrderSaveFails(t *testing.T) {
	ctx := context.Background()
	f := newSplitFixtureWithRepo(t, map[string]int{"panel": 5, "mount": 5, "inverter": 2}, nil,
		&flakyRepository{orderErr: kernel.ErrResourceContention})

	result, err := f.splitter.Split(ctx, twoVendorCart())
	if !errors.Is(err, kernel.ErrResourceContention) {
		t.Fatalf("expected contention, got %v", err)
	}
	if result.Order != nil || len(result.SubOrders) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	assertVoided(t, f.accounts.List(), 2)
	for _, product := range []string{"panel", "mount", "inverter"} {
		item, _ := f.ledger.Availability(ctx, product)
		if item.Reserved != 0 {
			t.Fatalf("%s reservation leaked: %d", product, item.Reserved)
		}
	}
	for _, vendor := range []string{"vendor-x", "vendor-y"} {
		if subs, _ := f.repo.ListByVendor(ctx, vendor); len(subs) != 0 {
			t.Fatalf("%s sub-orders stored without parent: %d", vendor, len(subs))
		}
	}
}

func TestSplitDropsVendorWhenSubOrderSaveFails(t *testing.T) {
	ctx := context.Background()
	f := newSplitFixtureWithRepo(t, map[string]int{"panel": 5, "mount": 5, "inverter": 2}, nil,
		&flakyRepository{vendorID: "vendor-y", vendorErr: kernel.ErrResourceContention})

	result, err := f.splitter.Split(ctx, twoVendorCart())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(result.SubOrders) != 1 || result.SubOrders[0].VendorID() != "vendor-x" {
		t.Fatalf("expected only vendor-x to stand: %+v", result.SubOrders)
	}
	if len(result.Failures) != 1 || result.Failures[0].VendorID != "vendor-y" {
		t.Fatalf("expected vendor-y failure: %+v", result.Failures)
	}
	stored, err := f.repo.FindOrder(ctx, result.Order.ID)
	if err != nil || stored == nil {
		t.Fatalf("find order: %v", err)
	}
	if len(stored.SubOrderIDs) != 1 || stored.SubOrderIDs[0] != result.SubOrders[0].ID() {
		t.Fatalf("stored order still lists dropped sub-order: %v", stored.SubOrderIDs)
	}
	inverter, _ := f.ledger.Availability(ctx, "inverter")
	if inverter.Reserved != 0 {
		t.Fatalf("inverter reservation leaked: %d", inverter.Reserved)
	}
	voided := 0
	for _, acct := range f.accounts.List() {
		if acct.SubOrderID() == result.SubOrders[0].ID() {
			if acct.Status() != escrow.StatusCreated {
				t.Fatalf("standing account touched: %s", acct.Status())
			}
			continue
		}
		if acct.Status() != escrow.StatusRefunded {
			t.Fatalf("dropped account left %s", acct.Status())
		}
		voided++
	}
	if voided != 1 {
		t.Fatalf("expected one voided account, got %d", voided)
	}
}

func TestSplitInstallmentFreezesFee(t *testing.T) {
	f := newSplitFixture(t, map[string]int{"inverter": 1}, nil)
	result, err := f.splitter.Split(context.Background(), application.Cart{
		BuyerID:     "buyer-1",
		Items:       []application.CartItem{{ProductID: "inverter", VendorID: "vendor-y", Quantity: 1}},
		PaymentType: pricing.PaymentInstallment,
		Months:      12,
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	price := result.SubOrders[0].Price()
	if !price.Total.Equal(decimal.NewFromInt(1950)) || !price.Monthly.Equal(decimal.RequireFromString("162.5")) {
		t.Fatalf("unexpected price: total=%s monthly=%s", price.Total, price.Monthly)
	}
	if !price.FeeRate.Equal(decimal.RequireFromString("0.3")) || price.Months != 12 {
		t.Fatalf("fee terms not frozen: %+v", price)
	}
}

func TestSplitReleasesGroupWhenLedgerRejects(t *testing.T) {
	ctx := context.Background()
	f := newSplitFixture(t, map[string]int{"panel": 5, "mount": 5}, nil)
	if err := f.ledger.Restock(ctx, "panel", 1); err != nil {
		t.Fatalf("restock: %v", err)
	}
	_, err := f.splitter.Split(ctx, application.Cart{
		BuyerID: "buyer-1",
		Items: []application.CartItem{
			{ProductID: "mount", VendorID: "vendor-x", Quantity: 1},
			{ProductID: "panel", VendorID: "vendor-x", Quantity: 2},
		},
		PaymentType: pricing.PaymentFull,
	})
	if !errors.Is(err, kernel.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	mount, _ := f.ledger.Availability(ctx, "mount")
	if mount.Reserved != 0 {
		t.Fatalf("mount reservation not released: %d", mount.Reserved)
	}
}
