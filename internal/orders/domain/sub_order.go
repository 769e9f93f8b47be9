package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/pricing"
)

// LineItem is a product line with its unit price snapshot.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SubOrder is the per-vendor partition of a parent order. Pricing terms are
// frozen at creation.
type SubOrder struct {
	id              string
	parentID        string
	buyerID         string
	vendorID        string
	lines           []LineItem
	price           pricing.Breakdown
	escrowAccountID string
	status          Status
	version         int
	createdAt       time.Time
	updatedAt       time.Time
}

// Snapshot is the flat persisted form of a sub-order.
type Snapshot struct {
	ID              string            `json:"id"`
	ParentID        string            `json:"parent_order_id"`
	BuyerID         string            `json:"buyer_id"`
	VendorID        string            `json:"vendor_id"`
	Lines           []LineItem        `json:"lines"`
	Price           pricing.Breakdown `json:"price"`
	EscrowAccountID string            `json:"escrow_account_id"`
	Status          Status            `json:"status"`
	Version         int               `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewSubOrderID returns a fresh sub-order id. Ids are allocated before the
// sub-order exists so reservations can reference it.
func NewSubOrderID() string { return kernel.NewID("so") }

// NewSubOrder creates a pending sub-order.
func NewSubOrder(id, parentID, buyerID, vendorID string, lines []LineItem, price pricing.Breakdown, now time.Time) (*SubOrder, error) {
	if buyerID == "" {
		return nil, ErrEmptyBuyerID
	}
	if vendorID == "" {
		return nil, ErrEmptyVendorID
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	if id == "" {
		id = NewSubOrderID()
	}
	now = now.UTC()
	return &SubOrder{
		id:        id,
		parentID:  parentID,
		buyerID:   buyerID,
		vendorID:  vendorID,
		lines:     append([]LineItem(nil), lines...),
		price:     price,
		status:    StatusPending,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// RestoreSubOrder rebuilds a sub-order from its persisted form.
func RestoreSubOrder(s Snapshot) (*SubOrder, error) {
	if _, ok := ParseStatus(string(s.Status)); !ok {
		return nil, fmt.Errorf("orders: unknown status %q", s.Status)
	}
	return &SubOrder{
		id:              s.ID,
		parentID:        s.ParentID,
		buyerID:         s.BuyerID,
		vendorID:        s.VendorID,
		lines:           append([]LineItem(nil), s.Lines...),
		price:           s.Price,
		escrowAccountID: s.EscrowAccountID,
		status:          s.Status,
		version:         s.Version,
		createdAt:       s.CreatedAt,
		updatedAt:       s.UpdatedAt,
	}, nil
}

// Transition moves the sub-order along its state machine.
func (o *SubOrder) Transition(next Status, at time.Time) error {
	if !CanTransition(o.status, next) {
		return fmt.Errorf("orders: sub-order %s %s -> %s: %w", o.id, o.status, next, kernel.ErrInvalidStateTransition)
	}
	o.status = next
	o.updatedAt = at.UTC()
	return nil
}

// AttachEscrow links the escrow account opened for this sub-order.
func (o *SubOrder) AttachEscrow(accountID string) {
	o.escrowAccountID = accountID
}

// Snapshot returns the flat form.
func (o *SubOrder) Snapshot() Snapshot {
	return Snapshot{
		ID:              o.id,
		ParentID:        o.parentID,
		BuyerID:         o.buyerID,
		VendorID:        o.vendorID,
		Lines:           append([]LineItem(nil), o.lines...),
		Price:           o.price,
		EscrowAccountID: o.escrowAccountID,
		Status:          o.status,
		Version:         o.version,
		CreatedAt:       o.createdAt,
		UpdatedAt:       o.updatedAt,
	}
}

func (o *SubOrder) ID() string                       { return o.id }
func (o *SubOrder) ParentID() string                 { return o.parentID }
func (o *SubOrder) BuyerID() string                  { return o.buyerID }
func (o *SubOrder) VendorID() string                 { return o.vendorID }
func (o *SubOrder) Lines() []LineItem                { return append([]LineItem(nil), o.lines...) }
func (o *SubOrder) Price() pricing.Breakdown         { return o.price }
func (o *SubOrder) Total() decimal.Decimal           { return o.price.Total }
func (o *SubOrder) EscrowAccountID() string          { return o.escrowAccountID }
func (o *SubOrder) Status() Status                   { return o.status }
func (o *SubOrder) Version() int                     { return o.version }
func (o *SubOrder) CreatedAt() time.Time             { return o.createdAt }
func (o *SubOrder) UpdatedAt() time.Time             { return o.updatedAt }
func (o *SubOrder) PaymentType() pricing.PaymentType { return o.price.PaymentType }

// IsNew reports whether the sub-order has never been persisted.
func (o *SubOrder) IsNew() bool { return o.version == 0 }

// MarkPersisted records a successful save.
func (o *SubOrder) MarkPersisted() {
	if o != nil {
		o.version++
	}
}

// Clone returns a detached copy.
func (o *SubOrder) Clone() *SubOrder {
	if o == nil {
		return nil
	}
	clone := *o
	clone.lines = append([]LineItem(nil), o.lines...)
	return &clone
}
