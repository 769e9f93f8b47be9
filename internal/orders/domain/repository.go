package orders

import "context"

// Repository persists parent orders and sub-orders. SaveSubOrder inserts new
// sub-orders and updates existing ones only when the stored version matches,
// returning ErrVersionConflict otherwise.
type Repository interface {
	SaveOrder(ctx context.Context, order *Order) error
	FindOrder(ctx context.Context, id string) (*Order, error)
	SaveSubOrder(ctx context.Context, sub *SubOrder) error
	FindSubOrder(ctx context.Context, id string) (*SubOrder, error)
	ListSubOrders(ctx context.Context, parentID string) ([]*SubOrder, error)
}
