package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/auth"
	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
	milestones "marketplace-settlement/internal/milestones/domain"
	"marketplace-settlement/internal/observability/metrics"
	"marketplace-settlement/internal/retry"
)

// Parties identifies who may act on the milestones of a sub-order.
type Parties struct {
	BuyerID  string
	VendorID string
}

// PartyResolver looks up the parties of a sub-order.
type PartyResolver interface {
	Parties(ctx context.Context, subOrderID string) (Parties, error)
}

// Escrow is the part of the escrow manager the scheduler drives. The
// scheduler is the only caller of ReleasePartial for milestone funds.
type Escrow interface {
	ReleasePartial(ctx context.Context, accountID string, amount decimal.Decimal, to escrow.Recipient) (escrow.Snapshot, error)
	Dispute(ctx context.Context, accountID, reason string) (escrow.Snapshot, error)
}

// AdvanceResult is the outcome of a milestone transition.
type AdvanceResult struct {
	Milestone milestones.Milestone
	Payment   *milestones.Payment
	Account   *escrow.Snapshot
}

// Scheduler creates milestone schedules and advances milestones.
type Scheduler struct {
	repo    milestones.Repository
	parties PartyResolver
	escrow  Escrow
	clock   kernel.Clock
	policy  retry.Policy
	logger  *log.Logger
}

// SchedulerOption configures the scheduler.
type SchedulerOption func(*Scheduler)

// WithClock overrides the clock.
func WithClock(clock kernel.Clock) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRetryPolicy overrides the contention retry policy.
func WithRetryPolicy(policy retry.Policy) SchedulerOption {
	return func(s *Scheduler) {
		s.policy = policy.Normalize()
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler constructs a scheduler.
func NewScheduler(repo milestones.Repository, parties PartyResolver, escrow Escrow, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, errors.New("milestone scheduler: nil repository")
	}
	if parties == nil {
		return nil, errors.New("milestone scheduler: nil party resolver")
	}
	if escrow == nil {
		return nil, errors.New("milestone scheduler: nil escrow")
	}
	s := &Scheduler{
		repo:    repo,
		parties: parties,
		escrow:  escrow,
		clock:   kernel.SystemClock{},
		policy:  retry.DefaultPolicy,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Schedule creates the milestones of an escrow account.
func (s *Scheduler) Schedule(ctx context.Context, accountID, subOrderID string, total decimal.Decimal, plans []milestones.Plan) ([]milestones.Milestone, error) {
	schedule, err := milestones.BuildSchedule(accountID, subOrderID, total, plans, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	for i := range schedule {
		schedule[i].Version = 1
	}
	s.logger.Printf("milestones scheduled: account=%s count=%d", accountID, len(schedule))
	return schedule, nil
}

// List returns the milestones of an account.
func (s *Scheduler) List(ctx context.Context, accountID string) ([]milestones.Milestone, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// Payments returns the payments recorded for a milestone.
func (s *Scheduler) Payments(ctx context.Context, milestoneID string) ([]milestones.Payment, error) {
	return s.repo.ListPayments(ctx, milestoneID)
}

// Get returns one milestone.
func (s *Scheduler) Get(ctx context.Context, milestoneID string) (milestones.Milestone, error) {
	m, err := s.repo.Get(ctx, milestoneID)
	if err != nil {
		return milestones.Milestone{}, err
	}
	if m == nil {
		return milestones.Milestone{}, fmt.Errorf("milestones: milestone %s: %w", milestoneID, kernel.ErrNotFound)
	}
	return *m, nil
}

// Advance moves a milestone to next on behalf of actor. Verification releases
// the milestone amount from escrow; a dispute freezes the escrow account.
func (s *Scheduler) Advance(ctx context.Context, milestoneID string, next milestones.Status, actor auth.Actor) (AdvanceResult, error) {
	m, err := s.repo.Get(ctx, milestoneID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if m == nil {
		return AdvanceResult{}, fmt.Errorf("milestones: milestone %s: %w", milestoneID, kernel.ErrNotFound)
	}
	parties, err := s.parties.Parties(ctx, m.SubOrderID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if err := authorize(*m, parties, next, actor); err != nil {
		return AdvanceResult{}, err
	}

	before := *m
	if err := m.Transition(next, s.clock.Now()); err != nil {
		return AdvanceResult{}, err
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return AdvanceResult{}, err
	}
	metrics.IncMilestoneTransition(string(next))

	result := AdvanceResult{Milestone: *m}
	switch next {
	case milestones.StatusVerified:
		payment, account, err := s.release(ctx, m, parties)
		if err != nil {
			if account == nil {
				s.revert(ctx, m, before)
			}
			return AdvanceResult{}, err
		}
		result.Payment, result.Account = payment, account
	case milestones.StatusDisputed:
		payment, account, err := s.dispute(ctx, m, parties, actor)
		if err != nil {
			if account == nil {
				s.revert(ctx, m, before)
			}
			return AdvanceResult{}, err
		}
		result.Payment, result.Account = payment, account
	}
	s.logger.Printf("milestone advanced: milestone=%s status=%s actor=%s", m.ID, m.Status, actor.ID)
	return result, nil
}

func (s *Scheduler) release(ctx context.Context, m *milestones.Milestone, parties Parties) (*milestones.Payment, *escrow.Snapshot, error) {
	to := recipient(*m, parties)
	account, err := s.escrow.ReleasePartial(ctx, m.AccountID, m.Amount, to)
	if err != nil {
		return nil, nil, err
	}
	payment := milestones.Payment{
		ID:            kernel.NewID("pay"),
		MilestoneID:   m.ID,
		RecipientType: string(to.Type),
		RecipientID:   to.ID,
		Amount:        m.Amount,
		Status:        milestones.PaymentReleased,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.recordPayment(ctx, payment); err != nil {
		return nil, &account, err
	}
	return &payment, &account, nil
}

// dispute freezes the escrow account. An account that is already disputed
// or closed keeps its state; the milestone dispute is recorded either way.
func (s *Scheduler) dispute(ctx context.Context, m *milestones.Milestone, parties Parties, actor auth.Actor) (*milestones.Payment, *escrow.Snapshot, error) {
	var account *escrow.Snapshot
	snap, err := s.escrow.Dispute(ctx, m.AccountID, fmt.Sprintf("milestone %s disputed by %s", m.ID, actor.ID))
	switch {
	case err == nil:
		account = &snap
	case !errors.Is(err, kernel.ErrInvalidStateTransition):
		return nil, nil, err
	}
	to := recipient(*m, parties)
	payment := milestones.Payment{
		ID:            kernel.NewID("pay"),
		MilestoneID:   m.ID,
		RecipientType: string(to.Type),
		RecipientID:   to.ID,
		Amount:        m.Amount,
		Status:        milestones.PaymentDisputed,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.recordPayment(ctx, payment); err != nil {
		return nil, account, err
	}
	return &payment, account, nil
}

// recordPayment retries the insert; once escrow has moved the payment row
// must not be lost.
func (s *Scheduler) recordPayment(ctx context.Context, payment milestones.Payment) error {
	err := retry.Do(ctx, "milestones.payment", s.policy, func(ctx context.Context) error {
		return s.repo.CreatePayment(ctx, payment)
	})
	if err != nil {
		s.logger.Printf("milestone payment record failed: milestone=%s amount=%s err=%v", payment.MilestoneID, payment.Amount, err)
	}
	return err
}

func (s *Scheduler) revert(ctx context.Context, m *milestones.Milestone, before milestones.Milestone) {
	before.Version = m.Version
	before.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, &before); err != nil {
		s.logger.Printf("milestone revert failed: milestone=%s err=%v", m.ID, err)
	}
}

func recipient(m milestones.Milestone, parties Parties) escrow.Recipient {
	if m.SelfInstall() {
		return escrow.Recipient{Type: escrow.RecipientVendor, ID: parties.VendorID}
	}
	return escrow.Recipient{Type: escrow.RecipientInstaller, ID: m.InstallerID}
}

// authorize applies the actor rules: the assigned installer, or the vendor
// when self-installing, does the work; the buyer or an admin verifies or
// disputes it.
func authorize(m milestones.Milestone, parties Parties, next milestones.Status, actor auth.Actor) error {
	if actor.ID == "" {
		return fmt.Errorf("milestones: anonymous actor: %w", kernel.ErrForbidden)
	}
	var allowed bool
	switch next {
	case milestones.StatusInProgress, milestones.StatusCompleted:
		if m.SelfInstall() {
			allowed = actor.Is(auth.RoleVendor) && actor.ID == parties.VendorID
		} else {
			allowed = actor.Is(auth.RoleInstaller) && actor.ID == m.InstallerID
		}
	case milestones.StatusVerified, milestones.StatusDisputed:
		allowed = actor.Is(auth.RoleAdmin) || (actor.Is(auth.RoleBuyer) && actor.ID == parties.BuyerID)
	default:
		return fmt.Errorf("milestones: target status %s: %w", next, kernel.ErrInvalidStateTransition)
	}
	if !allowed {
		return fmt.Errorf("milestones: %s %s may not move milestone %s to %s: %w", actor.Role, actor.ID, m.ID, next, kernel.ErrForbidden)
	}
	return nil
}
