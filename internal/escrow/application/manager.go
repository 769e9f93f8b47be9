package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/observability/metrics"
	"marketplace-settlement/internal/retry"
)

// FundResult reports the outcome of a funding call. Duplicate is set when the
// gateway transaction was already applied; the account is then unchanged.
type FundResult struct {
	Account   escrow.Snapshot
	Duplicate bool
}

// Manager owns escrow accounts. Every mutation is load, mutate, save with a
// version check, retried on contention.
type Manager struct {
	repo   escrow.Repository
	clock  kernel.Clock
	policy retry.Policy
	logger *log.Logger
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithClock overrides the clock.
func WithClock(clock kernel.Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithRetryPolicy overrides the contention retry policy.
func WithRetryPolicy(policy retry.Policy) ManagerOption {
	return func(m *Manager) {
		m.policy = policy.Normalize()
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager constructs the manager.
func NewManager(repo escrow.Repository, opts ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("escrow manager: nil repository")
	}
	m := &Manager{
		repo:   repo,
		clock:  kernel.SystemClock{},
		policy: retry.DefaultPolicy,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Open creates the account of a sub-order in status created.
func (m *Manager) Open(ctx context.Context, subOrderID string, total decimal.Decimal) (escrow.Snapshot, error) {
	acct, err := escrow.NewAccount(subOrderID, total, m.clock.Now())
	if err != nil {
		return escrow.Snapshot{}, err
	}
	err = retry.Do(ctx, "escrow.open", m.policy, func(ctx context.Context) error {
		return m.repo.Save(ctx, acct)
	})
	m.observe("open", err)
	if err != nil {
		return escrow.Snapshot{}, err
	}
	return acct.Snapshot(), nil
}

// Fund applies a gateway payment at most once per transaction id.
func (m *Manager) Fund(ctx context.Context, accountID, gatewayTxnID string, amount decimal.Decimal) (FundResult, error) {
	snap, err := m.mutate(ctx, "fund", accountID, func(acct *escrow.Account) error {
		return acct.Fund(gatewayTxnID, amount, m.clock.Now())
	})
	if errors.Is(err, kernel.ErrDuplicateTransaction) {
		current, getErr := m.Get(ctx, accountID)
		if getErr != nil {
			return FundResult{}, getErr
		}
		m.logger.Printf("escrow funding replay ignored: account=%s txn=%s", accountID, gatewayTxnID)
		return FundResult{Account: current, Duplicate: true}, nil
	}
	if err != nil {
		return FundResult{}, err
	}
	return FundResult{Account: snap}, nil
}

// ReleasePartial pays part of the held amount to a recipient.
func (m *Manager) ReleasePartial(ctx context.Context, accountID string, amount decimal.Decimal, to escrow.Recipient) (escrow.Snapshot, error) {
	return m.mutate(ctx, "release", accountID, func(acct *escrow.Account) error {
		return acct.ReleasePartial(amount, to, m.clock.Now())
	})
}

// Refund returns part of the held amount to the buyer.
func (m *Manager) Refund(ctx context.Context, accountID string, amount decimal.Decimal, reason string) (escrow.Snapshot, error) {
	return m.mutate(ctx, "refund", accountID, func(acct *escrow.Account) error {
		return acct.Refund(amount, reason, m.clock.Now())
	})
}

// Dispute blocks releases on the account.
func (m *Manager) Dispute(ctx context.Context, accountID, reason string) (escrow.Snapshot, error) {
	return m.mutate(ctx, "dispute", accountID, func(acct *escrow.Account) error {
		return acct.Dispute(reason, m.clock.Now())
	})
}

// ResolveDispute restores the pre-dispute status.
func (m *Manager) ResolveDispute(ctx context.Context, accountID string) (escrow.Snapshot, error) {
	return m.mutate(ctx, "resolve", accountID, func(acct *escrow.Account) error {
		return acct.ResolveDispute(m.clock.Now())
	})
}

// Void closes an unfunded account whose sub-order was never placed.
func (m *Manager) Void(ctx context.Context, accountID string) (escrow.Snapshot, error) {
	return m.mutate(ctx, "void", accountID, func(acct *escrow.Account) error {
		return acct.Void(m.clock.Now())
	})
}

// Get returns an account snapshot.
func (m *Manager) Get(ctx context.Context, accountID string) (escrow.Snapshot, error) {
	acct, err := m.repo.Get(ctx, accountID)
	if err != nil {
		return escrow.Snapshot{}, err
	}
	if acct == nil {
		return escrow.Snapshot{}, fmt.Errorf("escrow: account %s: %w", accountID, kernel.ErrNotFound)
	}
	return acct.Snapshot(), nil
}

// GetBySubOrder returns the account of a sub-order.
func (m *Manager) GetBySubOrder(ctx context.Context, subOrderID string) (escrow.Snapshot, error) {
	acct, err := m.repo.GetBySubOrder(ctx, subOrderID)
	if err != nil {
		return escrow.Snapshot{}, err
	}
	if acct == nil {
		return escrow.Snapshot{}, fmt.Errorf("escrow: sub-order %s: %w", subOrderID, kernel.ErrNotFound)
	}
	return acct.Snapshot(), nil
}

func (m *Manager) mutate(ctx context.Context, op, accountID string, fn func(*escrow.Account) error) (escrow.Snapshot, error) {
	var snap escrow.Snapshot
	err := retry.Do(ctx, "escrow."+op, m.policy, func(ctx context.Context) error {
		acct, err := m.repo.Get(ctx, accountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("escrow: account %s: %w", accountID, kernel.ErrNotFound)
		}
		if err := fn(acct); err != nil {
			return err
		}
		if err := m.repo.Save(ctx, acct); err != nil {
			return err
		}
		snap = acct.Snapshot()
		return nil
	})
	m.observe(op, err)
	if err != nil {
		return escrow.Snapshot{}, err
	}
	m.logger.Printf("escrow %s: account=%s status=%s held=%s released=%s",
		op, snap.ID, snap.Status, snap.Held, snap.Released)
	return snap, nil
}

func (m *Manager) observe(op string, err error) {
	switch {
	case err == nil:
		metrics.IncEscrowOperation(op, metrics.ResultSuccess)
	case errors.Is(err, kernel.ErrDuplicateTransaction):
		metrics.IncEscrowOperation(op, metrics.ResultDuplicate)
	case errors.Is(err, kernel.ErrResourceContention):
		metrics.IncEscrowOperation(op, metrics.ResultError)
	default:
		metrics.IncEscrowOperation(op, metrics.ResultRejected)
	}
}
