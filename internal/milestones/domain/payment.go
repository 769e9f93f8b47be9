package milestones

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the state of a disbursement record.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentReleased PaymentStatus = "released"
	PaymentDisputed PaymentStatus = "disputed"
)

// Payment records money leaving escrow for a milestone. Released payments
// are never modified.
type Payment struct {
	ID            string          `json:"id"`
	MilestoneID   string          `json:"milestone_id"`
	RecipientType string          `json:"recipient_type"`
	RecipientID   string          `json:"recipient_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        PaymentStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}
