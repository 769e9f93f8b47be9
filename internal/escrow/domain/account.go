package escrow

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
)

// Account holds a buyer's payment for one sub-order until it is released or
// refunded. Invariants: held >= 0, held+released+refunded <= total and
// released never decreases.
type Account struct {
	id             string
	subOrderID     string
	total          decimal.Decimal
	held           decimal.Decimal
	released       decimal.Decimal
	refunded       decimal.Decimal
	status         Status
	previousStatus Status
	disputeReason  string
	entries        []Entry
	pending        []Entry
	version        int
	createdAt      time.Time
	updatedAt      time.Time
}

// Snapshot is the flat persisted form of an account.
type Snapshot struct {
	ID             string          `json:"id"`
	SubOrderID     string          `json:"sub_order_id"`
	Total          decimal.Decimal `json:"total"`
	Held           decimal.Decimal `json:"held"`
	Released       decimal.Decimal `json:"released"`
	Refunded       decimal.Decimal `json:"refunded"`
	Status         Status          `json:"status"`
	PreviousStatus Status          `json:"previous_status,omitempty"`
	DisputeReason  string          `json:"dispute_reason,omitempty"`
	Entries        []Entry         `json:"entries,omitempty"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewAccount opens an account in status created.
func NewAccount(subOrderID string, total decimal.Decimal, now time.Time) (*Account, error) {
	if subOrderID == "" {
		return nil, ErrEmptySubOrderID
	}
	total = kernel.Cents(total)
	if !total.IsPositive() {
		return nil, fmt.Errorf("escrow: total %s: %w", total, kernel.ErrInvalidAmount)
	}
	now = now.UTC()
	return &Account{
		id:         kernel.NewID("esc"),
		subOrderID: subOrderID,
		total:      total,
		held:       decimal.Zero,
		released:   decimal.Zero,
		refunded:   decimal.Zero,
		status:     StatusCreated,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// RestoreAccount rebuilds an account from its persisted form.
func RestoreAccount(s Snapshot) (*Account, error) {
	if _, ok := ParseStatus(string(s.Status)); !ok {
		return nil, fmt.Errorf("escrow: unknown status %q", s.Status)
	}
	return &Account{
		id:             s.ID,
		subOrderID:     s.SubOrderID,
		total:          s.Total,
		held:           s.Held,
		released:       s.Released,
		refunded:       s.Refunded,
		status:         s.Status,
		previousStatus: s.PreviousStatus,
		disputeReason:  s.DisputeReason,
		entries:        append([]Entry(nil), s.Entries...),
		version:        s.Version,
		createdAt:      s.CreatedAt,
		updatedAt:      s.UpdatedAt,
	}, nil
}

// HasFunding reports whether a gateway transaction was already applied.
func (a *Account) HasFunding(txnID string) bool {
	for _, list := range [][]Entry{a.entries, a.pending} {
		for _, e := range list {
			if e.Kind == EntryFunding && e.Reference == txnID {
				return true
			}
		}
	}
	return false
}

// Fund applies a gateway payment. A transaction id already applied returns
// ErrDuplicateTransaction and leaves the account untouched.
func (a *Account) Fund(txnID string, amount decimal.Decimal, at time.Time) error {
	if txnID == "" {
		return ErrEmptyTransactionID
	}
	if a.HasFunding(txnID) {
		return fmt.Errorf("escrow: account %s txn %s: %w", a.id, txnID, kernel.ErrDuplicateTransaction)
	}
	amount = kernel.Cents(amount)
	if !amount.IsPositive() {
		return fmt.Errorf("escrow: funding %s: %w", amount, kernel.ErrInvalidAmount)
	}
	switch a.status {
	case StatusCreated, StatusFunded:
	default:
		return fmt.Errorf("escrow: fund account %s in %s: %w", a.id, a.status, kernel.ErrInvalidStateTransition)
	}
	if a.held.Add(a.released).Add(a.refunded).Add(amount).GreaterThan(a.total) {
		return fmt.Errorf("escrow: account %s funding %s of total %s: %w", a.id, amount, a.total, ErrOverfunded)
	}
	a.held = a.held.Add(amount)
	a.status = StatusFunded
	a.record(Entry{Kind: EntryFunding, Amount: amount, Reference: txnID}, at)
	return nil
}

// ReleasePartial pays part of the held amount to a recipient.
func (a *Account) ReleasePartial(amount decimal.Decimal, to Recipient, at time.Time) error {
	if !to.Valid() {
		return ErrEmptyRecipient
	}
	amount = kernel.Cents(amount)
	if !amount.IsPositive() {
		return fmt.Errorf("escrow: release %s: %w", amount, kernel.ErrInvalidAmount)
	}
	switch a.status {
	case StatusFunded, StatusPartialRelease:
	case StatusDisputed:
		return fmt.Errorf("escrow: release from account %s: %w", a.id, kernel.ErrEscrowDisputed)
	default:
		return fmt.Errorf("escrow: release from account %s in %s: %w", a.id, a.status, kernel.ErrInvalidStateTransition)
	}
	if amount.GreaterThan(a.held) {
		return fmt.Errorf("escrow: release %s from held %s: %w", amount, a.held, ErrInsufficientEscrow)
	}
	a.held = a.held.Sub(amount)
	a.released = a.released.Add(amount)
	a.status = StatusPartialRelease
	if a.held.IsZero() && a.released.Equal(a.total) {
		a.status = StatusCompleted
	}
	a.record(Entry{Kind: EntryRelease, Amount: amount, RecipientType: to.Type, RecipientID: to.ID}, at)
	return nil
}

// Refund returns part of the held amount to the buyer. The account is
// refunded once nothing is held.
func (a *Account) Refund(amount decimal.Decimal, reason string, at time.Time) error {
	amount = kernel.Cents(amount)
	if !amount.IsPositive() {
		return fmt.Errorf("escrow: refund %s: %w", amount, kernel.ErrInvalidAmount)
	}
	switch a.status {
	case StatusFunded, StatusPartialRelease, StatusDisputed:
	default:
		return fmt.Errorf("escrow: refund account %s in %s: %w", a.id, a.status, kernel.ErrInvalidStateTransition)
	}
	if amount.GreaterThan(a.held) {
		return fmt.Errorf("escrow: refund %s from held %s: %w", amount, a.held, ErrInsufficientEscrow)
	}
	a.held = a.held.Sub(amount)
	a.refunded = a.refunded.Add(amount)
	if a.held.IsZero() {
		a.status = StatusRefunded
		a.previousStatus = ""
	}
	a.record(Entry{Kind: EntryRefund, Amount: amount, Reference: reason}, at)
	return nil
}

// Dispute freezes releases until an admin resolves it.
func (a *Account) Dispute(reason string, at time.Time) error {
	switch a.status {
	case StatusFunded, StatusPartialRelease:
	default:
		return fmt.Errorf("escrow: dispute account %s in %s: %w", a.id, a.status, kernel.ErrInvalidStateTransition)
	}
	a.previousStatus = a.status
	a.status = StatusDisputed
	a.disputeReason = reason
	a.updatedAt = at.UTC()
	return nil
}

// ResolveDispute restores the status the account had before the dispute.
func (a *Account) ResolveDispute(at time.Time) error {
	if a.status != StatusDisputed {
		return fmt.Errorf("escrow: resolve account %s in %s: %w", a.id, a.status, kernel.ErrInvalidStateTransition)
	}
	next := a.previousStatus
	if next == "" {
		next = StatusFunded
	}
	a.status = next
	a.previousStatus = ""
	a.disputeReason = ""
	a.updatedAt = at.UTC()
	return nil
}

// Void closes an account that never received money. It ends refunded with
// nothing held or refunded.
func (a *Account) Void(at time.Time) error {
	if a.status != StatusCreated {
		return fmt.Errorf("escrow: void account %s in %s: %w", a.id, a.status, kernel.ErrInvalidStateTransition)
	}
	a.status = StatusRefunded
	a.previousStatus = ""
	a.updatedAt = at.UTC()
	return nil
}

func (a *Account) record(entry Entry, at time.Time) {
	at = at.UTC()
	entry.ID = kernel.NewID("ent")
	entry.AccountID = a.id
	entry.CreatedAt = at
	a.pending = append(a.pending, entry)
	a.updatedAt = at
}

// ID returns the account id.
func (a *Account) ID() string { return a.id }

// SubOrderID returns the owning sub-order.
func (a *Account) SubOrderID() string { return a.subOrderID }

// Total returns the amount the account is expected to hold.
func (a *Account) Total() decimal.Decimal { return a.total }

// Held returns the balance still in escrow.
func (a *Account) Held() decimal.Decimal { return a.held }

// Released returns the amount paid out.
func (a *Account) Released() decimal.Decimal { return a.released }

// Refunded returns the amount returned to the buyer.
func (a *Account) Refunded() decimal.Decimal { return a.refunded }

// Status returns the account status.
func (a *Account) Status() Status { return a.status }

// Version returns the persisted version.
func (a *Account) Version() int { return a.version }

// PendingEntries returns entries recorded since the last save.
func (a *Account) PendingEntries() []Entry { return append([]Entry(nil), a.pending...) }

// Entries returns persisted and pending entries.
func (a *Account) Entries() []Entry {
	out := make([]Entry, 0, len(a.entries)+len(a.pending))
	out = append(out, a.entries...)
	return append(out, a.pending...)
}

// IsNew reports whether the account has never been persisted.
func (a *Account) IsNew() bool { return a.version == 0 }

// MarkPersisted records a successful save.
func (a *Account) MarkPersisted() {
	if a == nil {
		return
	}
	a.entries = append(a.entries, a.pending...)
	a.pending = nil
	a.version++
}

// Snapshot returns the flat form including all entries.
func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		ID:             a.id,
		SubOrderID:     a.subOrderID,
		Total:          a.total,
		Held:           a.held,
		Released:       a.released,
		Refunded:       a.refunded,
		Status:         a.status,
		PreviousStatus: a.previousStatus,
		DisputeReason:  a.disputeReason,
		Entries:        a.Entries(),
		Version:        a.version,
		CreatedAt:      a.createdAt,
		UpdatedAt:      a.updatedAt,
	}
}

// Clone returns a detached copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.entries = append([]Entry(nil), a.entries...)
	clone.pending = append([]Entry(nil), a.pending...)
	return &clone
}
