package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/pricing"
)

func newTestSubOrder(t *testing.T) *SubOrder {
	t.Helper()
	sub, err := NewSubOrder("", "ord-1", "buyer-1", "vendor-x",
		[]LineItem{{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(250)}},
		pricing.Breakdown{Subtotal: decimal.NewFromInt(500), Total: decimal.NewFromInt(500)},
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new sub-order: %v", err)
	}
	return sub
}

func TestSubOrderHappyPath(t *testing.T) {
	sub := newTestSubOrder(t)
	now := time.Now()
	for _, next := range []Status{StatusPaid, StatusEscrow, StatusInstalling, StatusCompleted} {
		if err := sub.Transition(next, now); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if !sub.Status().Terminal() {
		t.Fatalf("expected terminal status, got %s", sub.Status())
	}
}

func TestSubOrderRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		name string
		path []Status
		next Status
	}{
		{name: "completed to pending", path: []Status{StatusPaid, StatusEscrow, StatusInstalling, StatusCompleted}, next: StatusPending},
		{name: "escrow to cancelled", path: []Status{StatusPaid, StatusEscrow}, next: StatusCancelled},
		{name: "pending to escrow", next: StatusEscrow},
		{name: "cancelled to paid", path: []Status{StatusCancelled}, next: StatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := newTestSubOrder(t)
			for _, step := range tc.path {
				if err := sub.Transition(step, time.Now()); err != nil {
					t.Fatalf("setup %s: %v", step, err)
				}
			}
			if err := sub.Transition(tc.next, time.Now()); !errors.Is(err, kernel.ErrInvalidStateTransition) {
				t.Fatalf("expected invalid transition, got %v", err)
			}
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		in   []Status
		want AggregateStatus
	}{
		{nil, AggregatePending},
		{[]Status{StatusPending, StatusPending}, AggregatePending},
		{[]Status{StatusPending, StatusEscrow}, AggregatePartiallyPaid},
		{[]Status{StatusEscrow, StatusInstalling}, AggregateInProgress},
		{[]Status{StatusCompleted, StatusCompleted}, AggregateCompleted},
		{[]Status{StatusCompleted, StatusCancelled}, AggregatePartiallyCompleted},
		{[]Status{StatusCancelled, StatusCancelled}, AggregateCancelled},
		{[]Status{StatusPending, StatusCancelled}, AggregatePending},
	}
	for _, tc := range cases {
		if got := DeriveStatus(tc.in); got != tc.want {
			t.Fatalf("DeriveStatus(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestRestoreRejectsUnknownStatus(t *testing.T) {
	snap := newTestSubOrder(t).Snapshot()
	snap.Status = "shipped"
	if _, err := RestoreSubOrder(snap); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
