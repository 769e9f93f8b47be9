package escrow

import "errors"

var (
	// ErrEmptySubOrderID is returned when sub-order id is empty.
	ErrEmptySubOrderID = errors.New("escrow: empty sub-order id")
	// ErrEmptyTransactionID is returned when a funding has no gateway transaction id.
	ErrEmptyTransactionID = errors.New("escrow: empty gateway transaction id")
	// ErrOverfunded is returned when funding would exceed the account total.
	ErrOverfunded = errors.New("escrow: funding exceeds total")
	// ErrInsufficientEscrow is returned when a release or refund exceeds the held amount.
	ErrInsufficientEscrow = errors.New("escrow: amount exceeds held balance")
	// ErrEmptyRecipient is returned when a release has no recipient.
	ErrEmptyRecipient = errors.New("escrow: empty recipient")
	// ErrAccountExists is returned when an account is opened twice for a sub-order.
	ErrAccountExists = errors.New("escrow: account already exists for sub-order")
)
