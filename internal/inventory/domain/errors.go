package inventory

import "errors"

var (
	// ErrEmptyProductID is returned when product id is empty.
	ErrEmptyProductID = errors.New("inventory: empty product id")
	// ErrEmptySubOrderID is returned when a reservation has no owning sub-order.
	ErrEmptySubOrderID = errors.New("inventory: empty sub-order id")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrReservationNotFound is returned when a reservation is unknown.
	ErrReservationNotFound = errors.New("inventory: reservation not found")
	// ErrStockBelowReserved is returned when on-hand would drop below reserved.
	ErrStockBelowReserved = errors.New("inventory: on hand below reserved")
)
