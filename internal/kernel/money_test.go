package kernel

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSplitProportional_RemainderOnLast(t *testing.T) {
	amount := decimal.RequireFromString("100.00")
	weights := []decimal.Decimal{
		decimal.NewFromInt(1),
		decimal.NewFromInt(1),
		decimal.NewFromInt(1),
	}
	shares, err := SplitProportional(amount, weights)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"33.33", "33.33", "33.34"}
	sum := decimal.Zero
	for i, share := range shares {
		if !share.Equal(decimal.RequireFromString(want[i])) {
			t.Fatalf("share %d: got=%s want=%s", i, share, want[i])
		}
		sum = sum.Add(share)
	}
	if !sum.Equal(amount) {
		t.Fatalf("shares sum to %s, want %s", sum, amount)
	}
}

func TestSplitProportional_ByTotals(t *testing.T) {
	amount := decimal.RequireFromString("2000")
	weights := []decimal.Decimal{decimal.RequireFromString("500"), decimal.RequireFromString("1500")}
	shares, err := SplitProportional(amount, weights)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if !shares[0].Equal(decimal.NewFromInt(500)) || !shares[1].Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected shares: %v", shares)
	}
}

func TestSplitProportional_ZeroWeights(t *testing.T) {
	_, err := SplitProportional(decimal.NewFromInt(10), []decimal.Decimal{decimal.Zero})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("162.499")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.String() != "162.5" {
		t.Fatalf("got %s", got.String())
	}
	if _, err := ParseAmount("-1"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if _, err := ParseAmount("abc"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for garbage, got %v", err)
	}
}

func TestPercent_Truncates(t *testing.T) {
	got := Percent(decimal.RequireFromString("999.99"), decimal.NewFromInt(30))
	if !got.Equal(decimal.RequireFromString("299.99")) {
		t.Fatalf("got %s", got)
	}
}
