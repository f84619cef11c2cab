// internal/handler/rest/funding.go
package rest

import (
	"encoding/json"
	"net/http"

	"p2p-escrow-service/internal/domain"
	mw "p2p-escrow-service/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ============================================================================
// LEDGER / FUNDING ENDPOINTS
// ============================================================================

// ListBalances returns the caller's balances.
// GET /p2p/balances
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r.Context())

	balances, err := h.ledger.ListBalances(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"balances": balances})
}

type fundingRequest struct {
	UserID string          `json:"user_id"`
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
	TxRef  string          `json:"tx_ref,omitempty"`
}

// Credit is called by the funding collaborator after it has independently
// verified a blockchain deposit. The core does not validate tx hashes.
// POST /p2p/funding/credit
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	var req fundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}

	if err := h.ledger.Credit(r.Context(), req.UserID, req.Token, req.Amount, req.TxRef); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{
		"user_id": req.UserID,
		"token":   req.Token,
		"amount":  req.Amount,
	})
}

// Debit is the funding collaborator's withdrawal entry point.
// POST /p2p/funding/debit
func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	var req fundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}

	if err := h.ledger.Debit(r.Context(), req.UserID, req.Token, req.Amount, req.TxRef); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{
		"user_id": req.UserID,
		"token":   req.Token,
		"amount":  req.Amount,
	})
}

// UpsertReputation lets the external scorer publish its read model.
// PUT /p2p/reputation/{userId}
func (h *Handler) UpsertReputation(w http.ResponseWriter, r *http.Request) {
	var rep domain.Reputation
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}
	rep.UserID = chi.URLParam(r, "userId")

	if err := h.reputation.Upsert(r.Context(), &rep); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"user_id": rep.UserID})
}
