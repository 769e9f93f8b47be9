package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/shopspring/decimal"

	settlementapp "marketplace-settlement/internal/settlement/application"
)

// PaymentVerifier confirms a webhook payment with the gateway.
type PaymentVerifier interface {
	Verify(ctx context.Context, gatewayTxnID string, amount decimal.Decimal) error
}

// PaymentWebhookHandler receives payment confirmations from the gateway. The
// HMAC signature is checked by middleware before this handler runs.
type PaymentWebhookHandler struct {
	coordinator *settlementapp.Coordinator
	verifier    PaymentVerifier
	logger      *log.Logger
}

// NewPaymentWebhookHandler constructs the handler. verifier may be nil.
func NewPaymentWebhookHandler(coordinator *settlementapp.Coordinator, verifier PaymentVerifier, logger *log.Logger) (*PaymentWebhookHandler, error) {
	if coordinator == nil {
		return nil, errors.New("payment webhook: nil coordinator")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PaymentWebhookHandler{coordinator: coordinator, verifier: verifier, logger: logger}, nil
}

type paymentWebhook struct {
	ParentOrderID string          `json:"parent_order_id"`
	GatewayTxnID  string          `json:"gateway_txn_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// ServeHTTP handles POST /webhooks/payments.
func (h *PaymentWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req paymentWebhook
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if h.verifier != nil {
		if err := h.verifier.Verify(r.Context(), req.GatewayTxnID, req.Amount); err != nil {
			h.logger.Printf("payment webhook rejected: order=%s txn=%s err=%v", req.ParentOrderID, req.GatewayTxnID, err)
			respondServiceError(w, err)
			return
		}
	}
	result, err := h.coordinator.ConfirmPayment(r.Context(), req.ParentOrderID, req.GatewayTxnID, req.Amount)
	if err != nil && len(result.SubOrders) == 0 {
		respondServiceError(w, err)
		return
	}
	resp := map[string]any{"payment": result}
	status := http.StatusOK
	if err != nil {
		resp["error"] = err.Error()
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}
