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
	orders "marketplace-settlement/internal/orders/domain"
	"marketplace-settlement/internal/pricing"
	reportingapp "marketplace-settlement/internal/reporting/application"
	reporting "marketplace-settlement/internal/reporting/domain"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

type subOrderList []*orders.SubOrder

func (l subOrderList) ListByVendor(ctx context.Context, vendorID string) ([]*orders.SubOrder, error) {
	var out []*orders.SubOrder
	for _, sub := range l {
		if sub.VendorID() == vendorID {
			out = append(out, sub)
		}
	}
	return out, nil
}

type failingSource struct{ err error }

func (s failingSource) VendorReleases(ctx context.Context, vendorID string, period reporting.Period) ([]reporting.Release, error) {
	return nil, s.err
}

func mustSubOrder(t *testing.T, id, vendorID string, total string) *orders.SubOrder {
	t.Helper()
	sub, err := orders.NewSubOrder(id, "po-1", "buyer-1", vendorID,
		[]orders.LineItem{{ProductID: "p", Quantity: 1, UnitPrice: decimal.RequireFromString(total)}},
		pricing.Breakdown{Total: decimal.RequireFromString(total)}, time.Now())
	if err != nil {
		t.Fatalf("new sub-order: %v", err)
	}
	return sub
}

func TestRevenueService_FromLedger(t *testing.T) {
	ctx := context.Background()
	clock := &manualClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	manager, err := escrowapp.NewManager(escrowmemory.NewAccountRepository(),
		escrowapp.WithClock(clock), escrowapp.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	subs := subOrderList{
		mustSubOrder(t, "so-1", "vendor-x", "1000"),
		mustSubOrder(t, "so-2", "vendor-y", "500"),
		mustSubOrder(t, "so-3", "vendor-x", "80"),
	}
	accounts := make(map[string]string)
	for _, sub := range subs[:2] {
		acct, err := manager.Open(ctx, sub.ID(), sub.Price().Total)
		if err != nil {
			t.Fatalf("open %s: %v", sub.ID(), err)
		}
		if _, err := manager.Fund(ctx, acct.ID, "txn-"+sub.ID(), sub.Price().Total); err != nil {
			t.Fatalf("fund %s: %v", sub.ID(), err)
		}
		accounts[sub.ID()] = acct.ID
	}

	release := func(subID string, amount string, to escrow.Recipient) {
		t.Helper()
		if _, err := manager.ReleasePartial(ctx, accounts[subID], decimal.RequireFromString(amount), to); err != nil {
			t.Fatalf("release %s: %v", subID, err)
		}
	}
	release("so-1", "300", escrow.Recipient{Type: escrow.RecipientVendor, ID: "vendor-x"})
	release("so-1", "200", escrow.Recipient{Type: escrow.RecipientInstaller, ID: "inst-1"})
	release("so-2", "500", escrow.Recipient{Type: escrow.RecipientVendor, ID: "vendor-y"})
	clock.now = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	release("so-1", "500", escrow.Recipient{Type: escrow.RecipientVendor, ID: "vendor-x"})

	source, err := reportingapp.NewLedgerSource(subs, manager)
	if err != nil {
		t.Fatalf("ledger source: %v", err)
	}
	service, err := reportingapp.NewRevenueService(source,
		reportingapp.WithCommissionRate(decimal.RequireFromString("0.1")),
		reportingapp.WithCurrency("usd"),
		reportingapp.WithClock(clock),
		reportingapp.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	march := reporting.MonthPeriod(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	report, err := service.VendorRevenue(ctx, "vendor-x", march)
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	if len(report.Releases) != 2 || report.SubOrders != 1 || report.Currency != "USD" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !report.GrossReleased.Equal(decimal.NewFromInt(500)) ||
		!report.Commission.Equal(decimal.NewFromInt(30)) ||
		!report.NetPayout.Equal(decimal.NewFromInt(270)) {
		t.Fatalf("totals: gross=%s commission=%s net=%s", report.GrossReleased, report.Commission, report.NetPayout)
	}
	if report.Releases[0].AccountID != accounts["so-1"] || report.Releases[0].SubOrderID != "so-1" {
		t.Fatalf("release attribution: %+v", report.Releases[0])
	}

	april, err := service.VendorRevenue(ctx, "vendor-x", reporting.MonthPeriod(clock.now))
	if err != nil {
		t.Fatalf("april: %v", err)
	}
	if !april.VendorReleased.Equal(decimal.NewFromInt(500)) || !april.InstallerPayouts.IsZero() {
		t.Fatalf("april totals: %+v", april)
	}
}

func TestRevenueService_Validation(t *testing.T) {
	if _, err := reportingapp.NewRevenueService(nil); err == nil {
		t.Fatalf("expected nil source error")
	}
	if _, err := reportingapp.NewRevenueService(failingSource{}, reportingapp.WithCommissionRate(decimal.NewFromInt(2))); !errors.Is(err, reporting.ErrInvalidCommissionRate) {
		t.Fatalf("expected invalid rate, got %v", err)
	}

	boom := errors.New("boom")
	service, err := reportingapp.NewRevenueService(failingSource{err: boom})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	period := reporting.MonthPeriod(time.Now())
	if _, err := service.VendorRevenue(context.Background(), " ", period); !errors.Is(err, reporting.ErrEmptyVendorID) {
		t.Fatalf("expected empty vendor, got %v", err)
	}
	if _, err := service.VendorRevenue(context.Background(), "v", reporting.Period{}); !errors.Is(err, reporting.ErrInvalidPeriod) {
		t.Fatalf("expected invalid period, got %v", err)
	}
	if _, err := service.VendorRevenue(context.Background(), "v", period); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}
