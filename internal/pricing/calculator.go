// Package pricing computes per-vendor totals: subtotal, shipping, tax and the
// flat installment surcharge.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
)

// PaymentType selects full payment or installment financing.
type PaymentType string

const (
	PaymentFull        PaymentType = "full"
	PaymentInstallment PaymentType = "installment"
)

var (
	// ErrInvalidLineItem is returned for non-positive quantities or negative prices.
	ErrInvalidLineItem = errors.New("pricing: invalid line item")
	// ErrInvalidTerm is returned when an installment term is not offered.
	ErrInvalidTerm = errors.New("pricing: invalid installment term")
	// ErrInvalidPaymentType is returned for unknown payment types.
	ErrInvalidPaymentType = errors.New("pricing: invalid payment type")
	// ErrInvalidConfig is returned for negative rates or fees.
	ErrInvalidConfig = errors.New("pricing: invalid config")
)

// NormalizePaymentType validates a payment type string. Empty means full.
func NormalizePaymentType(value string) (PaymentType, error) {
	switch PaymentType(value) {
	case "", PaymentFull:
		return PaymentFull, nil
	case PaymentInstallment:
		return PaymentInstallment, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentType, value)
	}
}

// Config holds the rates a calculator is built with.
type Config struct {
	TaxRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	InstallmentFeeRate    decimal.Decimal
	// AllowedTerms lists the installment terms in months. Empty allows any term >= 2.
	AllowedTerms []int
}

// DefaultConfig mirrors the marketplace defaults.
func DefaultConfig() Config {
	return Config{
		TaxRate:               decimal.Zero,
		ShippingFee:           decimal.NewFromInt(15),
		FreeShippingThreshold: decimal.NewFromInt(100),
		InstallmentFeeRate:    decimal.RequireFromString("0.30"),
		AllowedTerms:          []int{3, 6, 12, 24, 36},
	}
}

// Line is one priced line item.
type Line struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Breakdown is the priced result for one vendor group.
type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Shipping       decimal.Decimal `json:"shipping"`
	Tax            decimal.Decimal `json:"tax"`
	InstallmentFee decimal.Decimal `json:"installment_fee"`
	Total          decimal.Decimal `json:"total"`
	Monthly        decimal.Decimal `json:"monthly"`
	PaymentType    PaymentType     `json:"payment_type"`
	Months         int             `json:"months"`
	FeeRate        decimal.Decimal `json:"fee_rate"`
}

// Calculator prices vendor groups. It holds no mutable state.
type Calculator struct {
	cfg   Config
	terms map[int]struct{}
}

// NewCalculator validates and freezes the configuration.
func NewCalculator(cfg Config) (*Calculator, error) {
	if cfg.TaxRate.IsNegative() || cfg.ShippingFee.IsNegative() ||
		cfg.FreeShippingThreshold.IsNegative() || cfg.InstallmentFeeRate.IsNegative() {
		return nil, ErrInvalidConfig
	}
	terms := make(map[int]struct{}, len(cfg.AllowedTerms))
	for _, months := range cfg.AllowedTerms {
		if months < 2 {
			return nil, fmt.Errorf("%w: term %d", ErrInvalidConfig, months)
		}
		terms[months] = struct{}{}
	}
	cfg.AllowedTerms = append([]int(nil), cfg.AllowedTerms...)
	return &Calculator{cfg: cfg, terms: terms}, nil
}

// FeeRate returns the configured installment fee rate.
func (c *Calculator) FeeRate() decimal.Decimal { return c.cfg.InstallmentFeeRate }

// Quote prices lines for the given payment type and term. The installment fee
// is subtotal * feeRate regardless of the term length.
func (c *Calculator) Quote(lines []Line, paymentType PaymentType, months int) (Breakdown, error) {
	if len(lines) == 0 {
		return Breakdown{}, kernel.ErrEmptyCart
	}
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice.IsNegative() {
			return Breakdown{}, fmt.Errorf("%w: product %s", ErrInvalidLineItem, line.ProductID)
		}
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = kernel.Cents(subtotal)

	shipping := c.cfg.ShippingFee
	if subtotal.GreaterThanOrEqual(c.cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := kernel.Cents(subtotal.Mul(c.cfg.TaxRate))

	result := Breakdown{
		Subtotal:       subtotal,
		Shipping:       kernel.Cents(shipping),
		Tax:            tax,
		InstallmentFee: decimal.Zero,
		PaymentType:    paymentType,
		FeeRate:        decimal.Zero,
	}

	switch paymentType {
	case PaymentFull:
		result.Months = 1
	case PaymentInstallment:
		if err := c.checkTerm(months); err != nil {
			return Breakdown{}, err
		}
		result.Months = months
		result.FeeRate = c.cfg.InstallmentFeeRate
		result.InstallmentFee = kernel.Cents(subtotal.Mul(c.cfg.InstallmentFeeRate))
	default:
		return Breakdown{}, fmt.Errorf("%w: %q", ErrInvalidPaymentType, paymentType)
	}

	result.Total = result.Subtotal.Add(result.Shipping).Add(result.Tax).Add(result.InstallmentFee)
	result.Monthly = kernel.Cents(result.Total.Div(decimal.NewFromInt(int64(result.Months))))
	return result, nil
}

func (c *Calculator) checkTerm(months int) error {
	if months < 2 {
		return fmt.Errorf("%w: %d months", ErrInvalidTerm, months)
	}
	if len(c.terms) == 0 {
		return nil
	}
	if _, ok := c.terms[months]; !ok {
		return fmt.Errorf("%w: %d months", ErrInvalidTerm, months)
	}
	return nil
}
