package application

import (
	"context"
	"errors"

	escrow "marketplace-settlement/internal/escrow/domain"
	"marketplace-settlement/internal/kernel"
	orders "marketplace-settlement/internal/orders/domain"
	reporting "marketplace-settlement/internal/reporting/domain"
)

// VendorSubOrders lists the sub-orders of a vendor.
type VendorSubOrders interface {
	ListByVendor(ctx context.Context, vendorID string) ([]*orders.SubOrder, error)
}

// AccountLookup loads the escrow account of a sub-order, entries included.
type AccountLookup interface {
	GetBySubOrder(ctx context.Context, subOrderID string) (escrow.Snapshot, error)
}

// LedgerSource derives releases from the order and escrow stores directly.
// It serves in-memory deployments; Postgres deployments query the join.
type LedgerSource struct {
	orders   VendorSubOrders
	accounts AccountLookup
}

// NewLedgerSource constructs a source.
func NewLedgerSource(subOrders VendorSubOrders, accounts AccountLookup) (*LedgerSource, error) {
	if subOrders == nil || accounts == nil {
		return nil, errors.New("ledger source: nil dependency")
	}
	return &LedgerSource{orders: subOrders, accounts: accounts}, nil
}

// VendorReleases implements ReleaseSource.
func (s *LedgerSource) VendorReleases(ctx context.Context, vendorID string, period reporting.Period) ([]reporting.Release, error) {
	subs, err := s.orders.ListByVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	var out []reporting.Release
	for _, sub := range subs {
		account, err := s.accounts.GetBySubOrder(ctx, sub.ID())
		if errors.Is(err, kernel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, entry := range account.Entries {
			if entry.Kind != escrow.EntryRelease || !period.Contains(entry.CreatedAt) {
				continue
			}
			out = append(out, reporting.Release{
				EntryID:       entry.ID,
				SubOrderID:    sub.ID(),
				AccountID:     account.ID,
				RecipientType: string(entry.RecipientType),
				RecipientID:   entry.RecipientID,
				Amount:        entry.Amount,
				ReleasedAt:    entry.CreatedAt,
			})
		}
	}
	return out, nil
}
