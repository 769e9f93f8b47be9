package application

import (
	"context"
	"fmt"

	"marketplace-settlement/internal/kernel"
	milestoneapp "marketplace-settlement/internal/milestones/application"
	orders "marketplace-settlement/internal/orders/domain"
)

// SubOrderFinder loads sub-orders.
type SubOrderFinder interface {
	FindSubOrder(ctx context.Context, id string) (*orders.SubOrder, error)
}

// PartyResolver answers who the buyer and vendor of a sub-order are.
type PartyResolver struct {
	orders SubOrderFinder
}

// NewPartyResolver constructs a resolver over the order repository.
func NewPartyResolver(finder SubOrderFinder) *PartyResolver {
	return &PartyResolver{orders: finder}
}

// Parties implements the milestone scheduler's resolver.
func (r *PartyResolver) Parties(ctx context.Context, subOrderID string) (milestoneapp.Parties, error) {
	sub, err := r.orders.FindSubOrder(ctx, subOrderID)
	if err != nil {
		return milestoneapp.Parties{}, err
	}
	if sub == nil {
		return milestoneapp.Parties{}, fmt.Errorf("settlement: sub-order %s: %w", subOrderID, kernel.ErrNotFound)
	}
	return milestoneapp.Parties{BuyerID: sub.BuyerID(), VendorID: sub.VendorID()}, nil
}
