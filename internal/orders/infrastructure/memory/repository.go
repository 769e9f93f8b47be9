package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"marketplace-settlement/internal/kernel"
	orders "marketplace-settlement/internal/orders/domain"
)

// Repository is an in-memory order repository.
type Repository struct {
	mu        sync.RWMutex
	orders    map[string]orders.Order
	subOrders map[string]*orders.SubOrder
}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{
		orders:    make(map[string]orders.Order),
		subOrders: make(map[string]*orders.SubOrder),
	}
}

// SaveOrder stores a parent order.
func (r *Repository) SaveOrder(ctx context.Context, order *orders.Order) error {
	_ = ctx
	if order == nil {
		return orders.ErrNilAggregate
	}
	stored := *order
	stored.SubOrderIDs = append([]string(nil), order.SubOrderIDs...)
	r.mu.Lock()
	r.orders[order.ID] = stored
	r.mu.Unlock()
	return nil
}

// FindOrder loads a parent order.
func (r *Repository) FindOrder(ctx context.Context, id string) (*orders.Order, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	order.SubOrderIDs = append([]string(nil), order.SubOrderIDs...)
	return &order, nil
}

// SaveSubOrder inserts or version-checks and updates a sub-order.
func (r *Repository) SaveSubOrder(ctx context.Context, sub *orders.SubOrder) error {
	_ = ctx
	if sub == nil {
		return orders.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.subOrders[sub.ID()]
	switch {
	case sub.IsNew() && stored != nil:
		return fmt.Errorf("orders repo: sub-order %s exists: %w: %w", sub.ID(), orders.ErrVersionConflict, kernel.ErrResourceContention)
	case !sub.IsNew() && stored == nil:
		return fmt.Errorf("orders repo: sub-order %s: %w", sub.ID(), kernel.ErrNotFound)
	case !sub.IsNew() && stored.Version() != sub.Version():
		return fmt.Errorf("orders repo: sub-order %s: %w: %w", sub.ID(), orders.ErrVersionConflict, kernel.ErrResourceContention)
	}
	clone := sub.Clone()
	clone.MarkPersisted()
	r.subOrders[sub.ID()] = clone
	sub.MarkPersisted()
	return nil
}

// FindSubOrder loads a sub-order.
func (r *Repository) FindSubOrder(ctx context.Context, id string) (*orders.SubOrder, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subOrders[id].Clone(), nil
}

// ListSubOrders returns the sub-orders of a parent order in creation order.
func (r *Repository) ListSubOrders(ctx context.Context, parentID string) ([]*orders.SubOrder, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*orders.SubOrder
	for _, sub := range r.subOrders {
		if sub.ParentID() == parentID {
			result = append(result, sub.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt().Equal(result[j].CreatedAt()) {
			return result[i].ID() < result[j].ID()
		}
		return result[i].CreatedAt().Before(result[j].CreatedAt())
	})
	return result, nil
}

// ListByVendor returns every sub-order of a vendor.
func (r *Repository) ListByVendor(ctx context.Context, vendorID string) ([]*orders.SubOrder, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*orders.SubOrder
	for _, sub := range r.subOrders {
		if sub.VendorID() == vendorID {
			result = append(result, sub.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result, nil
}
