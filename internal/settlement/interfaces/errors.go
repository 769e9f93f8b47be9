package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"marketplace-settlement/internal/auth"
	escrow "marketplace-settlement/internal/escrow/domain"
	inventory "marketplace-settlement/internal/inventory/domain"
	"marketplace-settlement/internal/kernel"
	milestones "marketplace-settlement/internal/milestones/domain"
	orders "marketplace-settlement/internal/orders/domain"
	"marketplace-settlement/internal/pricing"
	settlement "marketplace-settlement/internal/settlement/domain"
)

type errorResponse struct {
	Error    string `json:"error"`
	Failures any    `json:"failures,omitempty"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, kernel.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, kernel.ErrForbidden), errors.Is(err, auth.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, kernel.ErrResourceContention):
		return http.StatusServiceUnavailable
	case errors.Is(err, kernel.ErrInvalidStateTransition),
		errors.Is(err, kernel.ErrEscrowDisputed),
		errors.Is(err, kernel.ErrInsufficientStock),
		errors.Is(err, kernel.ErrVendorUnavailable),
		errors.Is(err, milestones.ErrAlreadyScheduled),
		errors.Is(err, escrow.ErrAccountExists),
		errors.Is(err, settlement.ErrNothingPayable):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrPaymentMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, kernel.ErrEmptyCart),
		errors.Is(err, kernel.ErrPercentagesDoNotSum100),
		errors.Is(err, kernel.ErrInvalidAmount),
		errors.Is(err, escrow.ErrOverfunded),
		errors.Is(err, escrow.ErrInsufficientEscrow),
		errors.Is(err, milestones.ErrEmptyPlan),
		errors.Is(err, milestones.ErrEmptyName),
		errors.Is(err, milestones.ErrInvalidPercentage),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, orders.ErrEmptyBuyerID),
		errors.Is(err, pricing.ErrInvalidLineItem),
		errors.Is(err, pricing.ErrInvalidTerm),
		errors.Is(err, pricing.ErrInvalidPaymentType),
		errors.Is(err, settlement.ErrUnknownAction),
		errors.Is(err, settlement.ErrEmptyOrderID),
		errors.Is(err, settlement.ErrEmptySubOrderID),
		errors.Is(err, settlement.ErrEmptyGatewayTxnID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	respondServiceErrorWith(w, err, nil)
}

func respondServiceErrorWith(w http.ResponseWriter, err error, failures any) {
	if err == nil {
		return
	}
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message, Failures: failures})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
