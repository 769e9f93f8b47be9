package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/audit"
	settlementapp "marketplace-settlement/internal/settlement/application"
)

const apiPrefix = "/api/v1/"

// Handler serves the settlement API under /api/v1.
type Handler struct {
	coordinator *settlementapp.Coordinator
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(coordinator *settlementapp.Coordinator, auditLogger audit.Logger) (*Handler, error) {
	if coordinator == nil {
		return nil, errors.New("settlement handler: nil coordinator")
	}
	return &Handler{coordinator: coordinator, auditLogger: auditLogger}, nil
}

// ServeHTTP routes checkout, order, sub-order and milestone requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, apiPrefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case rest == "checkout" && r.Method == http.MethodPost:
		h.handleCheckout(w, r)
		return
	case len(parts) == 2 && parts[0] == "orders" && r.Method == http.MethodGet:
		h.handleGetOrder(w, r, parts[1])
		return
	case len(parts) == 3 && parts[0] == "orders" && parts[2] == "cancel" && r.Method == http.MethodPost:
		h.handleCancelOrder(w, r, parts[1])
		return
	case len(parts) == 3 && parts[0] == "suborders" && r.Method == http.MethodPost:
		switch parts[2] {
		case "refund":
			h.handleRefund(w, r, parts[1])
			return
		case "dispute":
			h.handleDispute(w, r, parts[1])
			return
		case "resolve":
			h.handleResolve(w, r, parts[1])
			return
		}
	case len(parts) == 3 && parts[0] == "milestones" && r.Method == http.MethodPost:
		h.handleMilestone(w, r, parts[1], parts[2])
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req settlementapp.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.coordinator.Checkout(r.Context(), req)
	if err != nil {
		respondServiceErrorWith(w, err, result.Failures)
		return
	}
	writeJSON(w, http.StatusCreated, result)
	h.logAudit(r, "checkout.create", "order", result.ParentOrderID, map[string]any{
		"sub_orders": len(result.SubOrders),
		"failures":   len(result.Failures),
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request, id string) {
	view, err := h.coordinator.GetOrder(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		SubOrderID string `json:"sub_order_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	var (
		results []settlementapp.RefundResult
		err     error
	)
	if req.SubOrderID != "" {
		var res settlementapp.RefundResult
		res, err = h.coordinator.CancelSubOrderOf(r.Context(), id, req.SubOrderID)
		if err == nil {
			results = append(results, res)
		}
	} else {
		results, err = h.coordinator.CancelOrder(r.Context(), id)
	}
	if err != nil && len(results) == 0 {
		respondServiceError(w, err)
		return
	}
	resp := map[string]any{"order_id": id, "cancelled": results}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
	h.logAudit(r, "order.cancel", "order", id, map[string]any{
		"sub_order_id": req.SubOrderID,
		"cancelled":    len(results),
	})
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.coordinator.RequestRefund(r.Context(), id, req.Amount, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
	h.logAudit(r, "suborder.refund", "sub_order", id, map[string]any{
		"amount": result.Refunded.StringFixed(2),
		"reason": req.Reason,
	})
}

func (h *Handler) handleDispute(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	account, err := h.coordinator.DisputeEscrow(r.Context(), id, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
	h.logAudit(r, "suborder.dispute", "sub_order", id, map[string]any{"reason": req.Reason})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request, id string) {
	account, err := h.coordinator.ResolveDispute(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
	h.logAudit(r, "suborder.resolve", "sub_order", id, map[string]any{"status": account.Status})
}

func (h *Handler) handleMilestone(w http.ResponseWriter, r *http.Request, id, action string) {
	result, err := h.coordinator.UpdateMilestone(r.Context(), id, action)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
	h.logAudit(r, "milestone."+action, "milestone", id, map[string]any{
		"status":    result.Milestone.Status,
		"sub_order": result.Milestone.SubOrderID,
	})
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.FromRequest(r, action, resourceType, resourceID, meta))
}
