package kernel

import "errors"

// Settlement error taxonomy shared by every component. Components wrap these
// with context; callers match with errors.Is.
var (
	// ErrInsufficientStock is returned when a reservation cannot be satisfied.
	ErrInsufficientStock = errors.New("settlement: insufficient stock")
	// ErrVendorUnavailable is returned when a vendor or its product cannot be sold.
	ErrVendorUnavailable = errors.New("settlement: vendor unavailable")
	// ErrInvalidStateTransition is returned for transitions outside a state machine.
	ErrInvalidStateTransition = errors.New("settlement: invalid state transition")
	// ErrPercentagesDoNotSum100 is returned when a milestone plan is not exactly 100%.
	ErrPercentagesDoNotSum100 = errors.New("settlement: milestone percentages do not sum to 100")
	// ErrResourceContention is transient and retryable.
	ErrResourceContention = errors.New("settlement: resource contention")
	// ErrDuplicateTransaction marks an idempotent replay; it is not a failure.
	ErrDuplicateTransaction = errors.New("settlement: duplicate transaction")
	// ErrEscrowDisputed blocks releases until the dispute is resolved.
	ErrEscrowDisputed = errors.New("settlement: escrow disputed")
	// ErrEmptyCart is returned when checkout receives no items.
	ErrEmptyCart = errors.New("settlement: empty cart")
	// ErrNotFound is returned when an aggregate does not exist.
	ErrNotFound = errors.New("settlement: not found")
	// ErrForbidden is returned when the actor may not perform the action.
	ErrForbidden = errors.New("settlement: forbidden")
	// ErrInvalidAmount is returned for zero, negative or out of range amounts.
	ErrInvalidAmount = errors.New("settlement: invalid amount")
)

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrResourceContention)
}
