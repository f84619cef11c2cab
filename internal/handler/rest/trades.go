// internal/handler/rest/trades.go
package rest

import (
	"encoding/json"
	"net/http"

	"p2p-escrow-service/internal/domain"
	mw "p2p-escrow-service/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// ============================================================================
// TRADE ENDPOINTS
// ============================================================================

// GetTrade returns one of the caller's trades.
// GET /p2p/trades/{id}
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r.Context())

	t, err := h.tradeSvc.GetTrade(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"trade": t})
}

// ListTrades returns the caller's trades, optionally narrowed by role and
// status. The presentation layer polls this read model.
// GET /p2p/trades
func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r.Context())
	q := r.URL.Query()

	filter := &domain.TradeFilter{
		UserID: userID,
		Role:   domain.TradeRole(q.Get("role")),
		Status: domain.TradeStatus(q.Get("status")),
	}

	trades, err := h.tradeSvc.ListTrades(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	})
}

// MarkPaymentSent records the taker's claim that fiat was paid.
// POST /p2p/trades/{id}/payment-sent
func (h *Handler) MarkPaymentSent(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r.Context())

	var req struct {
		PaymentProofRef string `json:"payment_proof_ref,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
			return
		}
	}

	t, err := h.tradeSvc.MarkPaymentSent(r.Context(), chi.URLParam(r, "id"), userID, req.PaymentProofRef)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"trade": t})
}

// ConfirmPayment records the maker's confirmation and releases the escrow.
// POST /p2p/trades/{id}/confirm
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r.Context())

	t, err := h.tradeSvc.ConfirmPayment(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"trade": t})
}

// CancelTrade aborts a pending trade.
// POST /p2p/trades/{id}/cancel
func (h *Handler) CancelTrade(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r.Context())

	t, err := h.tradeSvc.Cancel(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"trade": t})
}

// RaiseDispute freezes a payment_sent trade for arbitration.
// POST /p2p/trades/{id}/dispute
func (h *Handler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r.Context())

	t, err := h.tradeSvc.RaiseDispute(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"trade": t})
}

// Arbitrate applies the external arbitrator's verdict.
// POST /p2p/trades/{id}/arbitrate
func (h *Handler) Arbitrate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}

	t, err := h.tradeSvc.Arbitrate(r.Context(), chi.URLParam(r, "id"), domain.ArbitrationOutcome(req.Outcome))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"trade": t})
}
