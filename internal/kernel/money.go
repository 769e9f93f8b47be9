package kernel

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CentPlaces is the number of fractional digits kept for money.
const CentPlaces = 2

var hundred = decimal.NewFromInt(100)

// Cents rounds an amount half-up to whole cents.
func Cents(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(CentPlaces)
}

// FloorCents truncates a non-negative amount to whole cents.
func FloorCents(amount decimal.Decimal) decimal.Decimal {
	return amount.Truncate(CentPlaces)
}

// Percent returns pct% of amount truncated to cents.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return FloorCents(amount.Mul(pct).Div(hundred))
}

// Hundred returns 100 as a decimal.
func Hundred() decimal.Decimal { return hundred }

// ParseAmount parses a decimal string and rejects negative values.
func ParseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, value)
	}
	return Cents(amount), nil
}

// SplitProportional divides amount across weights in proportion, truncating each
// share to cents and assigning the remainder to the last share. The shares always
// sum to amount exactly.
func SplitProportional(amount decimal.Decimal, weights []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(weights) == 0 {
		return nil, nil
	}
	total := decimal.Zero
	for _, w := range weights {
		if w.IsNegative() {
			return nil, fmt.Errorf("%w: negative weight", ErrInvalidAmount)
		}
		total = total.Add(w)
	}
	if total.IsZero() {
		return nil, fmt.Errorf("%w: zero total weight", ErrInvalidAmount)
	}

	shares := make([]decimal.Decimal, len(weights))
	allocated := decimal.Zero
	for i, w := range weights {
		if i == len(weights)-1 {
			shares[i] = amount.Sub(allocated)
			break
		}
		share := FloorCents(amount.Mul(w).Div(total))
		shares[i] = share
		allocated = allocated.Add(share)
	}
	return shares, nil
}
