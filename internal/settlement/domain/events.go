package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderCreated is emitted once per sub-order that survived checkout.
type OrderCreated struct {
	ParentOrderID string          `json:"parent_order_id"`
	SubOrderID    string          `json:"sub_order_id"`
	BuyerID       string          `json:"buyer_id"`
	VendorID      string          `json:"vendor_id"`
	Total         decimal.Decimal `json:"total"`
	PaymentType   string          `json:"payment_type"`
	Milestones    int             `json:"milestones"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// MilestoneVerified is emitted when a verified milestone released funds.
type MilestoneVerified struct {
	MilestoneID   string          `json:"milestone_id"`
	SubOrderID    string          `json:"sub_order_id"`
	AccountID     string          `json:"account_id"`
	RecipientType string          `json:"recipient_type"`
	RecipientID   string          `json:"recipient_id"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// RefundIssued is emitted when escrow money went back to the buyer.
type RefundIssued struct {
	SubOrderID string          `json:"sub_order_id"`
	AccountID  string          `json:"account_id"`
	BuyerID    string          `json:"buyer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	OccurredAt time.Time       `json:"occurred_at"`
}
