package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryFunding EntryKind = "funding"
	EntryRelease EntryKind = "release"
	EntryRefund  EntryKind = "refund"
)

// Entry is one append-only movement on an account. Reference carries the
// gateway transaction id for fundings and the reason for refunds.
type Entry struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Kind          EntryKind       `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	RecipientType RecipientType   `json:"recipient_type,omitempty"`
	RecipientID   string          `json:"recipient_id,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
