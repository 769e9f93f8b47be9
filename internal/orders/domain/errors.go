package orders

import "errors"

var (
	// ErrEmptyBuyerID is returned when buyer id is empty.
	ErrEmptyBuyerID = errors.New("orders: empty buyer id")
	// ErrEmptyVendorID is returned when vendor id is empty.
	ErrEmptyVendorID = errors.New("orders: empty vendor id")
	// ErrNoLines is returned when a sub-order has no line items.
	ErrNoLines = errors.New("orders: no line items")
	// ErrNilAggregate is returned when saving a nil aggregate.
	ErrNilAggregate = errors.New("orders: nil aggregate")
	// ErrVersionConflict is returned when a sub-order changed since it was loaded.
	ErrVersionConflict = errors.New("orders: version conflict")
)
