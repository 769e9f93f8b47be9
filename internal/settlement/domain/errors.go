package settlement

import "errors"

var (
	// ErrEmptyOrderID is returned when a parent order id is empty.
	ErrEmptyOrderID = errors.New("settlement: empty order id")
	// ErrEmptySubOrderID is returned when a sub-order id is empty.
	ErrEmptySubOrderID = errors.New("settlement: empty sub-order id")
	// ErrEmptyGatewayTxnID is returned when a payment carries no gateway transaction id.
	ErrEmptyGatewayTxnID = errors.New("settlement: empty gateway transaction id")
	// ErrUnknownAction is returned for milestone actions outside start, complete, verify, dispute.
	ErrUnknownAction = errors.New("settlement: unknown milestone action")
	// ErrNothingPayable is returned when every sub-order of an order is cancelled.
	ErrNothingPayable = errors.New("settlement: no payable sub-orders")
	// ErrPaymentMismatch is returned when the gateway disagrees with a webhook.
	ErrPaymentMismatch = errors.New("settlement: payment does not match gateway record")
)
