package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	reporting "marketplace-settlement/internal/reporting/domain"
)

func TestReleaseSource_NilDB(t *testing.T) {
	var source *ReleaseSource
	if _, err := source.VendorReleases(context.Background(), "v", reporting.Period{}); err == nil {
		t.Fatalf("expected nil db error")
	}
}

func TestReleaseSource_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	for _, table := range []string{"parent_orders", "sub_orders", "escrow_accounts", "escrow_entries"} {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		if err != nil || !exists {
			t.Skip("missing tables; run migrations")
		}
	}

	ctx := context.Background()
	suffix := time.Now().UTC().Format("150405.000000")
	parentID := "po-rpt-" + suffix
	subID := "so-rpt-" + suffix
	accountID := "esc-rpt-" + suffix
	mustExec := func(query string, args ...any) {
		t.Helper()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			t.Fatalf("exec %q: %v", query, err)
		}
	}
	mustExec(`INSERT INTO parent_orders (id, buyer_id) VALUES ($1, 'buyer-1')`, parentID)
	mustExec(`INSERT INTO sub_orders (id, parent_order_id, buyer_id, vendor_id, lines, payment_type, subtotal, shipping, tax, installment_fee, total, escrow_account_id, status)
VALUES ($1, $2, 'buyer-1', 'vendor-rpt', '[]', 'full', 1000, 0, 0, 0, 1000, $3, 'installing')`, subID, parentID, accountID)
	mustExec(`INSERT INTO escrow_accounts (id, sub_order_id, total_amount, held_amount, released_amount, status)
VALUES ($1, $2, 1000, 500, 500, 'partial_release')`, accountID, subID)

	in := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	out := time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC)
	mustExec(`INSERT INTO escrow_entries (id, account_id, kind, amount, reference, created_at) VALUES ($1, $2, 'funding', 1000, 'txn-1', $3)`, "ent-f-"+suffix, accountID, in)
	mustExec(`INSERT INTO escrow_entries (id, account_id, kind, amount, recipient_type, recipient_id, created_at) VALUES ($1, $2, 'release', 300, 'vendor', 'vendor-rpt', $3)`, "ent-r1-"+suffix, accountID, in)
	mustExec(`INSERT INTO escrow_entries (id, account_id, kind, amount, recipient_type, recipient_id, created_at) VALUES ($1, $2, 'release', 200, 'installer', 'inst-1', $3)`, "ent-r2-"+suffix, accountID, out)
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM escrow_entries WHERE account_id = $1`, accountID)
		_, _ = db.ExecContext(ctx, `DELETE FROM escrow_accounts WHERE id = $1`, accountID)
		_, _ = db.ExecContext(ctx, `DELETE FROM sub_orders WHERE id = $1`, subID)
		_, _ = db.ExecContext(ctx, `DELETE FROM parent_orders WHERE id = $1`, parentID)
	})

	source := NewReleaseSource(db)
	releases, err := source.VendorReleases(ctx, "vendor-rpt", reporting.MonthPeriod(in))
	if err != nil {
		t.Fatalf("releases: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("expected 1 release in march, got %d", len(releases))
	}
	r := releases[0]
	if r.SubOrderID != subID || r.AccountID != accountID || r.RecipientType != reporting.RecipientVendor || !r.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("unexpected release: %+v", r)
	}
}
