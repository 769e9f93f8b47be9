package milestones

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
)

// Status is the lifecycle state of a milestone.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusVerified   Status = "verified"
	StatusDisputed   Status = "disputed"
)

var transitions = map[Status]Status{
	StatusPending:    StatusInProgress,
	StatusInProgress: StatusCompleted,
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusPending, StatusInProgress, StatusCompleted, StatusVerified, StatusDisputed:
		return Status(value), true
	default:
		return "", false
	}
}

// CanTransition reports whether from -> to is allowed. Verified is terminal.
func CanTransition(from, to Status) bool {
	if from == StatusCompleted {
		return to == StatusVerified || to == StatusDisputed
	}
	next, ok := transitions[from]
	return ok && next == to
}

// Milestone is one percentage-weighted installation stage of an escrow account.
type Milestone struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"escrow_account_id"`
	SubOrderID  string          `json:"sub_order_id"`
	Sequence    int             `json:"sequence"`
	Name        string          `json:"name"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
	Status      Status          `json:"status"`
	DueAt       *time.Time      `json:"due_at,omitempty"`
	InstallerID string          `json:"installer_id,omitempty"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Transition moves the milestone along its state machine.
func (m *Milestone) Transition(next Status, at time.Time) error {
	if !CanTransition(m.Status, next) {
		return fmt.Errorf("milestones: milestone %s %s -> %s: %w", m.ID, m.Status, next, kernel.ErrInvalidStateTransition)
	}
	at = at.UTC()
	m.Status = next
	m.UpdatedAt = at
	if next == StatusVerified {
		m.VerifiedAt = &at
	}
	return nil
}

// SelfInstall reports whether the vendor performs the installation.
func (m Milestone) SelfInstall() bool { return m.InstallerID == "" }

// Plan describes one milestone to schedule.
type Plan struct {
	Name        string          `json:"name" yaml:"name"`
	Percentage  decimal.Decimal `json:"percentage" yaml:"percentage"`
	DueIn       time.Duration   `json:"due_in,omitempty" yaml:"due_in"`
	InstallerID string          `json:"installer_id,omitempty" yaml:"installer_id"`
}

// ValidatePlan checks that percentages are each in (0,100] and sum to exactly 100.
func ValidatePlan(plans []Plan) error {
	if len(plans) == 0 {
		return ErrEmptyPlan
	}
	sum := decimal.Zero
	for _, p := range plans {
		if strings.TrimSpace(p.Name) == "" {
			return ErrEmptyName
		}
		if !p.Percentage.IsPositive() || p.Percentage.GreaterThan(kernel.Hundred()) {
			return fmt.Errorf("%w: %s=%s", ErrInvalidPercentage, p.Name, p.Percentage)
		}
		sum = sum.Add(p.Percentage)
	}
	if !sum.Equal(kernel.Hundred()) {
		return fmt.Errorf("milestones: plan sums to %s: %w", sum, kernel.ErrPercentagesDoNotSum100)
	}
	return nil
}

// BuildSchedule allocates total across the plan. Each amount is the
// percentage of total rounded down to cents; the final milestone takes the
// remainder so the amounts sum to total exactly.
func BuildSchedule(accountID, subOrderID string, total decimal.Decimal, plans []Plan, now time.Time) ([]Milestone, error) {
	if err := ValidatePlan(plans); err != nil {
		return nil, err
	}
	total = kernel.Cents(total)
	if !total.IsPositive() {
		return nil, fmt.Errorf("milestones: total %s: %w", total, kernel.ErrInvalidAmount)
	}
	now = now.UTC()
	out := make([]Milestone, 0, len(plans))
	allocated := decimal.Zero
	for i, p := range plans {
		amount := kernel.Percent(total, p.Percentage)
		if i == len(plans)-1 {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		m := Milestone{
			ID:          kernel.NewID("ms"),
			AccountID:   accountID,
			SubOrderID:  subOrderID,
			Sequence:    i + 1,
			Name:        strings.TrimSpace(p.Name),
			Percentage:  p.Percentage,
			Amount:      amount,
			Status:      StatusPending,
			InstallerID: p.InstallerID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if p.DueIn > 0 {
			due := now.Add(p.DueIn)
			m.DueAt = &due
		}
		out = append(out, m)
	}
	return out, nil
}
