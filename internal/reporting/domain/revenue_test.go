package reporting

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBuildVendorRevenue(t *testing.T) {
	period := MonthPeriod(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	at := func(day int) time.Time { return time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC) }
	releases := []Release{
		{EntryID: "e3", SubOrderID: "so-2", RecipientType: RecipientVendor, RecipientID: "vendor-x", Amount: decimal.RequireFromString("100.01"), ReleasedAt: at(20)},
		{EntryID: "e1", SubOrderID: "so-1", RecipientType: RecipientVendor, RecipientID: "vendor-x", Amount: decimal.RequireFromString("300"), ReleasedAt: at(2)},
		{EntryID: "e2", SubOrderID: "so-1", RecipientType: RecipientInstaller, RecipientID: "inst-1", Amount: decimal.RequireFromString("200"), ReleasedAt: at(5)},
		{EntryID: "e4", SubOrderID: "so-3", RecipientType: RecipientVendor, RecipientID: "vendor-x", Amount: decimal.RequireFromString("999"), ReleasedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}

	report, err := BuildVendorRevenue("vendor-x", period, "USD", decimal.RequireFromString("0.10"), releases, at(31))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(report.Releases) != 3 || report.Releases[0].EntryID != "e1" || report.Releases[2].EntryID != "e3" {
		t.Fatalf("releases not filtered and ordered: %+v", report.Releases)
	}
	if report.SubOrders != 2 {
		t.Fatalf("sub-orders: %d", report.SubOrders)
	}
	checks := map[string][2]decimal.Decimal{
		"gross":      {report.GrossReleased, decimal.RequireFromString("600.01")},
		"vendor":     {report.VendorReleased, decimal.RequireFromString("400.01")},
		"installer":  {report.InstallerPayouts, decimal.RequireFromString("200")},
		"commission": {report.Commission, decimal.RequireFromString("40")},
		"net":        {report.NetPayout, decimal.RequireFromString("360.01")},
	}
	for name, pair := range checks {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: got %s want %s", name, pair[0], pair[1])
		}
	}
}

func TestBuildVendorRevenueValidation(t *testing.T) {
	period := MonthPeriod(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	now := time.Now()
	if _, err := BuildVendorRevenue("", period, "USD", decimal.Zero, nil, now); !errors.Is(err, ErrEmptyVendorID) {
		t.Fatalf("expected empty vendor error, got %v", err)
	}
	if _, err := BuildVendorRevenue("v", Period{From: period.To, To: period.From}, "USD", decimal.Zero, nil, now); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected invalid period, got %v", err)
	}
	if _, err := BuildVendorRevenue("v", period, "USD", decimal.RequireFromString("1.5"), nil, now); !errors.Is(err, ErrInvalidCommissionRate) {
		t.Fatalf("expected invalid rate, got %v", err)
	}
	report, err := BuildVendorRevenue("v", period, "USD", decimal.Zero, nil, now)
	if err != nil {
		t.Fatalf("empty report: %v", err)
	}
	if !report.NetPayout.IsZero() || report.SubOrders != 0 {
		t.Fatalf("empty report totals: %+v", report)
	}
}
