package reporting

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
)

var (
	// ErrEmptyVendorID is returned when a report is requested without a vendor.
	ErrEmptyVendorID = errors.New("reporting: empty vendor id")
	// ErrInvalidPeriod is returned when the period end is not after its start.
	ErrInvalidPeriod = errors.New("reporting: invalid period")
	// ErrInvalidCommissionRate is returned for rates outside [0,1].
	ErrInvalidCommissionRate = errors.New("reporting: invalid commission rate")
)

// Recipient types as recorded on escrow release entries.
const (
	RecipientVendor    = "vendor"
	RecipientInstaller = "installer"
)

// Release is one escrow release paid out of a vendor's sub-order.
type Release struct {
	EntryID       string          `json:"entry_id"`
	SubOrderID    string          `json:"sub_order_id"`
	AccountID     string          `json:"account_id"`
	RecipientType string          `json:"recipient_type"`
	RecipientID   string          `json:"recipient_id"`
	Amount        decimal.Decimal `json:"amount"`
	ReleasedAt    time.Time       `json:"released_at"`
}

// Period is a half-open [From, To) reporting window.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate checks the window.
func (p Period) Validate() error {
	if p.From.IsZero() || p.To.IsZero() || !p.To.After(p.From) {
		return fmt.Errorf("%w: %s - %s", ErrInvalidPeriod, p.From.Format(time.DateOnly), p.To.Format(time.DateOnly))
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

// VendorRevenue aggregates what a vendor's escrow accounts paid out.
// Commission is taken from the vendor's own share only; installer payouts
// pass through.
type VendorRevenue struct {
	VendorID         string          `json:"vendor_id"`
	Period           Period          `json:"period"`
	Currency         string          `json:"currency"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	GrossReleased    decimal.Decimal `json:"gross_released"`
	VendorReleased   decimal.Decimal `json:"vendor_released"`
	InstallerPayouts decimal.Decimal `json:"installer_payouts"`
	Commission       decimal.Decimal `json:"commission"`
	NetPayout        decimal.Decimal `json:"net_payout"`
	SubOrders        int             `json:"sub_orders"`
	Releases         []Release       `json:"releases"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// BuildVendorRevenue aggregates releases into a report. Commission is rounded
// down to cents.
func BuildVendorRevenue(vendorID string, period Period, currency string, rate decimal.Decimal, releases []Release, now time.Time) (VendorRevenue, error) {
	if vendorID == "" {
		return VendorRevenue{}, ErrEmptyVendorID
	}
	if err := period.Validate(); err != nil {
		return VendorRevenue{}, err
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return VendorRevenue{}, fmt.Errorf("%w: %s", ErrInvalidCommissionRate, rate)
	}

	report := VendorRevenue{
		VendorID:         vendorID,
		Period:           period,
		Currency:         currency,
		CommissionRate:   rate,
		GrossReleased:    decimal.Zero,
		VendorReleased:   decimal.Zero,
		InstallerPayouts: decimal.Zero,
		GeneratedAt:      now.UTC(),
	}
	subOrders := make(map[string]struct{})
	for _, r := range releases {
		if !period.Contains(r.ReleasedAt) {
			continue
		}
		report.Releases = append(report.Releases, r)
		subOrders[r.SubOrderID] = struct{}{}
		report.GrossReleased = report.GrossReleased.Add(r.Amount)
		if r.RecipientType == RecipientInstaller {
			report.InstallerPayouts = report.InstallerPayouts.Add(r.Amount)
		} else {
			report.VendorReleased = report.VendorReleased.Add(r.Amount)
		}
	}
	sort.SliceStable(report.Releases, func(i, j int) bool {
		return report.Releases[i].ReleasedAt.Before(report.Releases[j].ReleasedAt)
	})
	report.SubOrders = len(subOrders)
	report.Commission = kernel.FloorCents(report.VendorReleased.Mul(rate))
	report.NetPayout = report.VendorReleased.Sub(report.Commission)
	return report, nil
}

// MonthPeriod returns the calendar month containing t, in UTC.
func MonthPeriod(t time.Time) Period {
	t = t.UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{From: from, To: from.AddDate(0, 1, 0)}
}
