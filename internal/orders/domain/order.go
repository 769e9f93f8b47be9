package orders

import (
	"time"

	"marketplace-settlement/internal/kernel"
)

// Order is the parent of one checkout. Its status is derived, never stored.
type Order struct {
	ID          string    `json:"id"`
	BuyerID     string    `json:"buyer_id"`
	SubOrderIDs []string  `json:"sub_order_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewOrder creates a parent order with a fresh id.
func NewOrder(buyerID string, now time.Time) (*Order, error) {
	if buyerID == "" {
		return nil, ErrEmptyBuyerID
	}
	return &Order{ID: kernel.NewID("ord"), BuyerID: buyerID, CreatedAt: now.UTC()}, nil
}
