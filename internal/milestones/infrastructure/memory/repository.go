package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"marketplace-settlement/internal/kernel"
	milestones "marketplace-settlement/internal/milestones/domain"
)

// Repository is an in-memory milestone repository.
type Repository struct {
	mu         sync.RWMutex
	milestones map[string]milestones.Milestone
	byAccount  map[string][]string
	payments   map[string][]milestones.Payment
}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{
		milestones: make(map[string]milestones.Milestone),
		byAccount:  make(map[string][]string),
		payments:   make(map[string][]milestones.Payment),
	}
}

// CreateSchedule stores the schedule of one account.
func (r *Repository) CreateSchedule(ctx context.Context, schedule []milestones.Milestone) error {
	_ = ctx
	if len(schedule) == 0 {
		return milestones.ErrEmptyPlan
	}
	accountID := schedule[0].AccountID
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.byAccount[accountID]) > 0 {
		return fmt.Errorf("milestones repo: account %s: %w", accountID, milestones.ErrAlreadyScheduled)
	}
	for _, m := range schedule {
		m.Version = 1
		r.milestones[m.ID] = m
		r.byAccount[accountID] = append(r.byAccount[accountID], m.ID)
	}
	return nil
}

// Get loads a milestone.
func (r *Repository) Get(ctx context.Context, id string) (*milestones.Milestone, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.milestones[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// ListByAccount returns the milestones of an account by sequence.
func (r *Repository) ListByAccount(ctx context.Context, accountID string) ([]milestones.Milestone, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]milestones.Milestone, 0, len(r.byAccount[accountID]))
	for _, id := range r.byAccount[accountID] {
		out = append(out, r.milestones[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// Update saves a milestone under an optimistic version check.
func (r *Repository) Update(ctx context.Context, m *milestones.Milestone) error {
	_ = ctx
	if m == nil {
		return fmt.Errorf("milestones repo: nil milestone")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.milestones[m.ID]
	if !ok {
		return fmt.Errorf("milestones repo: milestone %s: %w", m.ID, kernel.ErrNotFound)
	}
	if stored.Version != m.Version {
		return fmt.Errorf("milestones repo: milestone %s: %w: %w", m.ID, milestones.ErrVersionConflict, kernel.ErrResourceContention)
	}
	m.Version++
	r.milestones[m.ID] = *m
	return nil
}

// CreatePayment records a disbursement.
func (r *Repository) CreatePayment(ctx context.Context, payment milestones.Payment) error {
	_ = ctx
	r.mu.Lock()
	r.payments[payment.MilestoneID] = append(r.payments[payment.MilestoneID], payment)
	r.mu.Unlock()
	return nil
}

// ListPayments returns the payments of a milestone.
func (r *Repository) ListPayments(ctx context.Context, milestoneID string) ([]milestones.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]milestones.Payment(nil), r.payments[milestoneID]...), nil
}
