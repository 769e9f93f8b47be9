package memory

import (
	"context"
	"fmt"
	"sync"

	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
)

// AccountRepository is an in-memory escrow repository with optimistic versioning.
type AccountRepository struct {
	mu         sync.RWMutex
	data       map[string]*escrow.Account
	bySubOrder map[string]string
}

// NewAccountRepository constructs a repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		data:       make(map[string]*escrow.Account),
		bySubOrder: make(map[string]string),
	}
}

// Save stores the account when its version matches the stored one.
func (r *AccountRepository) Save(ctx context.Context, account *escrow.Account) error {
	_ = ctx
	if account == nil {
		return fmt.Errorf("escrow repo: nil account")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.data[account.ID()]
	switch {
	case account.IsNew():
		if stored != nil {
			return fmt.Errorf("escrow repo: account %s exists: %w", account.ID(), kernel.ErrResourceContention)
		}
		if _, ok := r.bySubOrder[account.SubOrderID()]; ok {
			return fmt.Errorf("escrow repo: sub-order %s: %w", account.SubOrderID(), escrow.ErrAccountExists)
		}
	case stored == nil:
		return fmt.Errorf("escrow repo: account %s: %w", account.ID(), kernel.ErrNotFound)
	case stored.Version() != account.Version():
		return fmt.Errorf("escrow repo: account %s version %d != %d: %w",
			account.ID(), account.Version(), stored.Version(), kernel.ErrResourceContention)
	}

	clone := account.Clone()
	clone.MarkPersisted()
	r.data[account.ID()] = clone
	r.bySubOrder[account.SubOrderID()] = account.ID()
	account.MarkPersisted()
	return nil
}

// Get loads an account by id.
func (r *AccountRepository) Get(ctx context.Context, id string) (*escrow.Account, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if acct := r.data[id]; acct != nil {
		return acct.Clone(), nil
	}
	return nil, nil
}

// GetBySubOrder loads the account of a sub-order.
func (r *AccountRepository) GetBySubOrder(ctx context.Context, subOrderID string) (*escrow.Account, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if acct := r.data[r.bySubOrder[subOrderID]]; acct != nil {
		return acct.Clone(), nil
	}
	return nil, nil
}

// List returns all accounts.
func (r *AccountRepository) List() []*escrow.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*escrow.Account, 0, len(r.data))
	for _, acct := range r.data {
		out = append(out, acct.Clone())
	}
	return out
}
