package milestones

import "context"

// Repository persists milestones and their payments.
type Repository interface {
	// CreateSchedule stores all milestones of an account atomically; an
	// account that already has milestones returns ErrAlreadyScheduled.
	CreateSchedule(ctx context.Context, schedule []Milestone) error
	Get(ctx context.Context, id string) (*Milestone, error)
	ListByAccount(ctx context.Context, accountID string) ([]Milestone, error)
	// Update saves m when the stored version equals m.Version and bumps it.
	Update(ctx context.Context, m *Milestone) error
	CreatePayment(ctx context.Context, payment Payment) error
	ListPayments(ctx context.Context, milestoneID string) ([]Payment, error)
}
