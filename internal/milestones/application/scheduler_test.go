package application_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/auth"
	escrowapp "marketplace-settlement/internal/escrow/application"
	escrow "marketplace-settlement/internal/escrow/domain"
	escrowmemory "marketplace-settlement/internal/escrow/infrastructure/memory"
	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/milestones/application"
	milestones "marketplace-settlement/internal/milestones/domain"
	"marketplace-settlement/internal/milestones/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type staticParties struct{ parties application.Parties }

func (s staticParties) Parties(ctx context.Context, subOrderID string) (application.Parties, error) {
	return s.parties, nil
}

var (
	buyer     = auth.Actor{ID: "buyer-1", Role: auth.RoleBuyer}
	vendor    = auth.Actor{ID: "vendor-x", Role: auth.RoleVendor}
	installer = auth.Actor{ID: "installer-7", Role: auth.RoleInstaller}
	admin     = auth.Actor{ID: "admin-1", Role: auth.RoleAdmin}
)

type schedulerFixture struct {
	scheduler *application.Scheduler
	escrow    *escrowapp.Manager
	repo      *memory.Repository
	accountID string
}

func newSchedulerFixture(t *testing.T, total int64) schedulerFixture {
	t.Helper()
	ctx := context.Background()
	clock := fixedClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	logger := log.New(io.Discard, "", 0)
	manager, err := escrowapp.NewManager(escrowmemory.NewAccountRepository(), escrowapp.WithClock(clock), escrowapp.WithLogger(logger))
	if err != nil {
		t.Fatalf("new escrow manager: %v", err)
	}
	acct, err := manager.Open(ctx, "so-1", decimal.NewFromInt(total))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := manager.Fund(ctx, acct.ID, "gw-1", decimal.NewFromInt(total)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	repo := memory.NewRepository()
	scheduler, err := application.NewScheduler(repo,
		staticParties{parties: application.Parties{BuyerID: buyer.ID, VendorID: vendor.ID}},
		manager,
		application.WithClock(clock), application.WithLogger(logger))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return schedulerFixture{scheduler: scheduler, escrow: manager, repo: repo, accountID: acct.ID}
}

func threeStepPlan(installerID string) []milestones.Plan {
	return []milestones.Plan{
		{Name: "site survey", Percentage: decimal.NewFromInt(30), InstallerID: installerID},
		{Name: "mounting", Percentage: decimal.NewFromInt(30), InstallerID: installerID},
		{Name: "commissioning", Percentage: decimal.NewFromInt(40), InstallerID: installerID},
	}
}

func advanceTo(t *testing.T, s *application.Scheduler, id string, worker, verifier auth.Actor) application.AdvanceResult {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Advance(ctx, id, milestones.StatusInProgress, worker); err != nil {
		t.Fatalf("start %s: %v", id, err)
	}
	if _, err := s.Advance(ctx, id, milestones.StatusCompleted, worker); err != nil {
		t.Fatalf("complete %s: %v", id, err)
	}
	result, err := s.Advance(ctx, id, milestones.StatusVerified, verifier)
	if err != nil {
		t.Fatalf("verify %s: %v", id, err)
	}
	return result
}

func TestVerifiedMilestonesReleaseEscrow(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, 1000)
	schedule, err := f.scheduler.Schedule(ctx, f.accountID, "so-1", decimal.NewFromInt(1000), threeStepPlan(""))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	first := advanceTo(t, f.scheduler, schedule[0].ID, vendor, buyer)
	if !first.Payment.Amount.Equal(decimal.NewFromInt(300)) || first.Payment.Status != milestones.PaymentReleased {
		t.Fatalf("unexpected payment %+v", first.Payment)
	}
	if first.Payment.RecipientID != vendor.ID || first.Payment.RecipientType != string(escrow.RecipientVendor) {
		t.Fatalf("self-install should pay vendor, got %+v", first.Payment)
	}
	if !first.Account.Held.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("expected held 700, got %s", first.Account.Held)
	}

	advanceTo(t, f.scheduler, schedule[1].ID, vendor, admin)
	last := advanceTo(t, f.scheduler, schedule[2].ID, vendor, buyer)
	if !last.Account.Held.IsZero() || last.Account.Status != escrow.StatusCompleted {
		t.Fatalf("expected completed account, got held=%s status=%s", last.Account.Held, last.Account.Status)
	}
}

func TestVerifiedIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, 1000)
	schedule, _ := f.scheduler.Schedule(ctx, f.accountID, "so-1", decimal.NewFromInt(1000), threeStepPlan(""))
	advanceTo(t, f.scheduler, schedule[0].ID, vendor, buyer)

	_, err := f.scheduler.Advance(ctx, schedule[0].ID, milestones.StatusInProgress, vendor)
	if !errors.Is(err, kernel.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestInstallerReceivesRelease(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, 1000)
	schedule, _ := f.scheduler.Schedule(ctx, f.accountID, "so-1", decimal.NewFromInt(1000), threeStepPlan(installer.ID))

	if _, err := f.scheduler.Advance(ctx, schedule[0].ID, milestones.StatusInProgress, vendor); !errors.Is(err, kernel.ErrForbidden) {
		t.Fatalf("vendor should not start installer work, got %v", err)
	}
	result := advanceTo(t, f.scheduler, schedule[0].ID, installer, buyer)
	if result.Payment.RecipientID != installer.ID || result.Payment.RecipientType != string(escrow.RecipientInstaller) {
		t.Fatalf("expected installer payment, got %+v", result.Payment)
	}
}

func TestAuthorizationRules(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, 1000)
	schedule, _ := f.scheduler.Schedule(ctx, f.accountID, "so-1", decimal.NewFromInt(1000), threeStepPlan(""))
	id := schedule[0].ID

	otherBuyer := auth.Actor{ID: "buyer-2", Role: auth.RoleBuyer}
	cases := []struct {
		name  string
		next  milestones.Status
		actor auth.Actor
	}{
		{name: "admin cannot start work", next: milestones.StatusInProgress, actor: admin},
		{name: "buyer cannot start work", next: milestones.StatusInProgress, actor: buyer},
		{name: "other vendor cannot start", next: milestones.StatusInProgress, actor: auth.Actor{ID: "vendor-q", Role: auth.RoleVendor}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.scheduler.Advance(ctx, id, tc.next, tc.actor); !errors.Is(err, kernel.ErrForbidden) {
				t.Fatalf("expected forbidden, got %v", err)
			}
		})
	}

	if _, err := f.scheduler.Advance(ctx, id, milestones.StatusInProgress, vendor); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.scheduler.Advance(ctx, id, milestones.StatusCompleted, vendor); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.scheduler.Advance(ctx, id, milestones.StatusVerified, vendor); !errors.Is(err, kernel.ErrForbidden) {
		t.Fatalf("vendor must not verify, got %v", err)
	}
	if _, err := f.scheduler.Advance(ctx, id, milestones.StatusVerified, otherBuyer); !errors.Is(err, kernel.ErrForbidden) {
		t.Fatalf("other buyer must not verify, got %v", err)
	}
}

func TestDisputeFreezesEscrow(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, 1000)
	schedule, _ := f.scheduler.Schedule(ctx, f.accountID, "so-1", decimal.NewFromInt(1000), threeStepPlan(""))
	advanceTo(t, f.scheduler, schedule[0].ID, vendor, buyer)

	second := schedule[1].ID
	if _, err := f.scheduler.Advance(ctx, second, milestones.StatusInProgress, vendor); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.scheduler.Advance(ctx, second, milestones.StatusCompleted, vendor); err != nil {
		t.Fatalf("complete: %v", err)
	}
	result, err := f.scheduler.Advance(ctx, second, milestones.StatusDisputed, buyer)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if result.Payment.Status != milestones.PaymentDisputed || result.Account.Status != escrow.StatusDisputed {
		t.Fatalf("unexpected dispute result: payment=%s account=%s", result.Payment.Status, result.Account.Status)
	}

	third := schedule[2].ID
	if _, err := f.scheduler.Advance(ctx, third, milestones.StatusInProgress, vendor); err != nil {
		t.Fatalf("start third: %v", err)
	}
	if _, err := f.scheduler.Advance(ctx, third, milestones.StatusCompleted, vendor); err != nil {
		t.Fatalf("complete third: %v", err)
	}
	_, err = f.scheduler.Advance(ctx, third, milestones.StatusVerified, buyer)
	if !errors.Is(err, kernel.ErrEscrowDisputed) {
		t.Fatalf("expected escrow disputed, got %v", err)
	}
	m, err := f.scheduler.Get(ctx, third)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Status != milestones.StatusCompleted {
		t.Fatalf("failed verification should leave milestone completed, got %s", m.Status)
	}
	acct, _ := f.escrow.Get(ctx, f.accountID)
	if !acct.Held.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("held changed while disputed: %s", acct.Held)
	}
}

func TestScheduleTwiceRejected(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, 100)
	if _, err := f.scheduler.Schedule(ctx, f.accountID, "so-1", decimal.NewFromInt(100), threeStepPlan("")); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	_, err := f.scheduler.Schedule(ctx, f.accountID, "so-1", decimal.NewFromInt(100), threeStepPlan(""))
	if !errors.Is(err, milestones.ErrAlreadyScheduled) {
		t.Fatalf("expected already scheduled, got %v", err)
	}
}

func TestScheduleRejectsBadPercentages(t *testing.T) {
	f := newSchedulerFixture(t, 100)
	plans := []milestones.Plan{
		{Name: "a", Percentage: decimal.NewFromInt(50)},
		{Name: "b", Percentage: decimal.NewFromInt(40)},
	}
	_, err := f.scheduler.Schedule(context.Background(), f.accountID, "so-1", decimal.NewFromInt(100), plans)
	if !errors.Is(err, kernel.ErrPercentagesDoNotSum100) {
		t.Fatalf("expected percentages error, got %v", err)
	}
}
