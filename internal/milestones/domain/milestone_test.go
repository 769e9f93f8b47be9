package milestones

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
)

func plan(pcts ...string) []Plan {
	out := make([]Plan, 0, len(pcts))
	for i, p := range pcts {
		out = append(out, Plan{Name: "step-" + string(rune('a'+i)), Percentage: decimal.RequireFromString(p)})
	}
	return out
}

func TestBuildScheduleAllocatesRemainderToLast(t *testing.T) {
	cases := []struct {
		name  string
		total string
		pcts  []string
		want  []string
	}{
		{name: "even", total: "1000", pcts: []string{"30", "30", "40"}, want: []string{"300", "300", "400"}},
		{name: "thirds", total: "100", pcts: []string{"33.33", "33.33", "33.34"}, want: []string{"33.33", "33.33", "33.34"}},
		{name: "odd cents", total: "99.99", pcts: []string{"50", "50"}, want: []string{"49.99", "50"}},
		{name: "single", total: "1950", pcts: []string{"100"}, want: []string{"1950"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total := decimal.RequireFromString(tc.total)
			schedule, err := BuildSchedule("esc-1", "so-1", total, plan(tc.pcts...), time.Now())
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			sum := decimal.Zero
			for i, m := range schedule {
				if !m.Amount.Equal(decimal.RequireFromString(tc.want[i])) {
					t.Fatalf("milestone %d amount %s, want %s", i, m.Amount, tc.want[i])
				}
				if m.Sequence != i+1 || m.Status != StatusPending {
					t.Fatalf("milestone %d unexpected sequence/status %d/%s", i, m.Sequence, m.Status)
				}
				sum = sum.Add(m.Amount)
			}
			if !sum.Equal(total) {
				t.Fatalf("amounts sum %s, want %s", sum, total)
			}
		})
	}
}

func TestValidatePlan(t *testing.T) {
	if err := ValidatePlan(plan("30", "30", "30")); !errors.Is(err, kernel.ErrPercentagesDoNotSum100) {
		t.Fatalf("expected sum error, got %v", err)
	}
	if err := ValidatePlan(plan("0", "100")); !errors.Is(err, ErrInvalidPercentage) {
		t.Fatalf("expected percentage error, got %v", err)
	}
	if err := ValidatePlan(nil); !errors.Is(err, ErrEmptyPlan) {
		t.Fatalf("expected empty plan, got %v", err)
	}
	if err := ValidatePlan([]Plan{{Name: " ", Percentage: decimal.NewFromInt(100)}}); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected empty name, got %v", err)
	}
}

func TestMilestoneTransitions(t *testing.T) {
	m := Milestone{ID: "ms-1", Status: StatusPending}
	now := time.Now()
	for _, next := range []Status{StatusInProgress, StatusCompleted, StatusVerified} {
		if err := m.Transition(next, now); err != nil {
			t.Fatalf("transition %s: %v", next, err)
		}
	}
	if m.VerifiedAt == nil {
		t.Fatalf("verified_at not set")
	}
	if err := m.Transition(StatusInProgress, now); !errors.Is(err, kernel.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition from verified, got %v", err)
	}

	pending := Milestone{ID: "ms-2", Status: StatusPending}
	if err := pending.Transition(StatusDisputed, now); !errors.Is(err, kernel.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition pending -> disputed, got %v", err)
	}
}
