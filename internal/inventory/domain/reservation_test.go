package inventory

import (
	"errors"
	"testing"
	"time"

	"marketplace-settlement/internal/kernel"
)

func TestReservation_TerminalStates(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	res, err := NewReservation("prod-1", "so-1", 2, now, 15*time.Minute)
	if err != nil {
		t.Fatalf("new reservation: %v", err)
	}
	if !res.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry: %s", res.ExpiresAt)
	}
	if res.Expired(now.Add(14 * time.Minute)) {
		t.Fatalf("reservation should not be expired before ttl")
	}
	if !res.Expired(now.Add(15 * time.Minute)) {
		t.Fatalf("reservation should be expired at ttl")
	}

	if err := res.Transition(ReservationCommitted, now); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := res.Transition(ReservationReleased, now); !errors.Is(err, kernel.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition after commit, got %v", err)
	}
	if res.Expired(now.Add(time.Hour)) {
		t.Fatalf("committed reservation never expires")
	}
}

func TestNewReservation_Validation(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		product string
		sub     string
		qty     int
		want    error
	}{
		{"empty product", "", "so-1", 1, ErrEmptyProductID},
		{"empty sub-order", "prod-1", "", 1, ErrEmptySubOrderID},
		{"zero qty", "prod-1", "so-1", 0, ErrInvalidQuantity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewReservation(tc.product, tc.sub, tc.qty, now, time.Minute); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
