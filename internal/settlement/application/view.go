package application

import (
	"context"
	"errors"

	"marketplace-settlement/internal/auth"
	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
	milestones "marketplace-settlement/internal/milestones/domain"
	orders "marketplace-settlement/internal/orders/domain"
)

// SubOrderView is a sub-order with its escrow account and milestones.
type SubOrderView struct {
	SubOrder   orders.Snapshot        `json:"sub_order"`
	Account    *escrow.Snapshot       `json:"account,omitempty"`
	Milestones []milestones.Milestone `json:"milestones"`
}

// OrderView is the read model of a parent order.
type OrderView struct {
	Order     orders.Order           `json:"order"`
	Status    orders.AggregateStatus `json:"status"`
	SubOrders []SubOrderView         `json:"sub_orders"`
}

// GetOrder assembles the view of a parent order. Admins see everything and
// buyers their own orders. Vendors see only their own sub-orders and
// installers only sub-orders with a milestone assigned to them; either gets
// ErrForbidden when nothing in the order is theirs.
func (c *Coordinator) GetOrder(ctx context.Context, parentOrderID string) (OrderView, error) {
	order, err := c.loadOrder(ctx, parentOrderID)
	if err != nil {
		return OrderView{}, err
	}
	actor, ok := auth.ActorFromContext(ctx)
	if ok && actor.Is(auth.RoleBuyer) && actor.ID != order.BuyerID {
		return OrderView{}, kernel.ErrForbidden
	}
	subs, err := c.subOrdersOf(ctx, order)
	if err != nil {
		return OrderView{}, err
	}

	view := OrderView{Order: *order}
	statuses := make([]orders.Status, 0, len(subs))
	for _, sub := range subs {
		statuses = append(statuses, sub.Status())
		if ok && actor.Is(auth.RoleVendor) && actor.ID != sub.VendorID() {
			continue
		}
		sv := SubOrderView{SubOrder: sub.Snapshot()}
		if sub.EscrowAccountID() != "" {
			list, err := c.milestones.List(ctx, sub.EscrowAccountID())
			if err != nil {
				return OrderView{}, err
			}
			sv.Milestones = list
		}
		if ok && actor.Is(auth.RoleInstaller) && !assignedTo(sv.Milestones, actor.ID) {
			continue
		}
		if sub.EscrowAccountID() != "" {
			account, err := c.escrow.Get(ctx, sub.EscrowAccountID())
			switch {
			case err == nil:
				account.Entries = nil
				sv.Account = &account
			case !errors.Is(err, kernel.ErrNotFound):
				return OrderView{}, err
			}
		}
		view.SubOrders = append(view.SubOrders, sv)
	}
	if ok && actor.Is(auth.RoleVendor, auth.RoleInstaller) && len(view.SubOrders) == 0 {
		return OrderView{}, kernel.ErrForbidden
	}
	view.Status = orders.DeriveStatus(statuses)
	return view, nil
}

func assignedTo(list []milestones.Milestone, installerID string) bool {
	for _, m := range list {
		if m.InstallerID == installerID {
			return true
		}
	}
	return false
}
