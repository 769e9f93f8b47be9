package application

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
	reporting "marketplace-settlement/internal/reporting/domain"
)

const defaultCurrency = "USD"

// ReleaseSource lists escrow releases out of a vendor's sub-orders.
type ReleaseSource interface {
	VendorReleases(ctx context.Context, vendorID string, period reporting.Period) ([]reporting.Release, error)
}

// RevenueService builds vendor revenue reports.
type RevenueService struct {
	source         ReleaseSource
	commissionRate decimal.Decimal
	currency       string
	clock          kernel.Clock
	logger         *log.Logger
}

// RevenueOption configures the service.
type RevenueOption func(*RevenueService)

// WithCommissionRate sets the platform commission on vendor releases.
func WithCommissionRate(rate decimal.Decimal) RevenueOption {
	return func(s *RevenueService) {
		s.commissionRate = rate
	}
}

// WithCurrency sets the reporting currency label.
func WithCurrency(currency string) RevenueOption {
	return func(s *RevenueService) {
		if strings.TrimSpace(currency) != "" {
			s.currency = strings.ToUpper(currency)
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock kernel.Clock) RevenueOption {
	return func(s *RevenueService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) RevenueOption {
	return func(s *RevenueService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRevenueService constructs a service.
func NewRevenueService(source ReleaseSource, opts ...RevenueOption) (*RevenueService, error) {
	if source == nil {
		return nil, errors.New("revenue service: nil source")
	}
	s := &RevenueService{
		source:         source,
		commissionRate: decimal.Zero,
		currency:       defaultCurrency,
		clock:          kernel.SystemClock{},
		logger:         log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.commissionRate.IsNegative() || s.commissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, reporting.ErrInvalidCommissionRate
	}
	return s, nil
}

// VendorRevenue reports the releases of vendorID inside period.
func (s *RevenueService) VendorRevenue(ctx context.Context, vendorID string, period reporting.Period) (reporting.VendorRevenue, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return reporting.VendorRevenue{}, reporting.ErrEmptyVendorID
	}
	if err := period.Validate(); err != nil {
		return reporting.VendorRevenue{}, err
	}
	releases, err := s.source.VendorReleases(ctx, vendorID, period)
	if err != nil {
		return reporting.VendorRevenue{}, err
	}
	report, err := reporting.BuildVendorRevenue(vendorID, period, s.currency, s.commissionRate, releases, s.clock.Now())
	if err != nil {
		return reporting.VendorRevenue{}, err
	}
	s.logger.Printf("vendor revenue built: vendor=%s from=%s releases=%d gross=%s",
		vendorID, period.From.Format("2006-01-02"), len(report.Releases), report.GrossReleased)
	return report, nil
}
