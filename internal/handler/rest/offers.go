// internal/handler/rest/offers.go
package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"p2p-escrow-service/internal/domain"
	mw "p2p-escrow-service/internal/middleware"
	"p2p-escrow-service/internal/usecase/escrow"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================================
// OFFER ENDPOINTS
// ============================================================================

// CreateOffer posts a new offer for the authenticated maker.
// POST /p2p/offers
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := mw.GetUserID(ctx)
	if !ok {
		h.respondJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "unauthorized"})
		return
	}

	var req domain.CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}
	if req.MakerWallet == "" {
		if wallet, ok := mw.GetWalletAddress(ctx); ok {
			req.MakerWallet = wallet
		}
	}

	o, err := h.offerSvc.Create(ctx, userID, &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusCreated, map[string]interface{}{"offer": o})
}

// ListOffers returns a filtered snapshot of open offers.
// GET /p2p/offers
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	filter, err := offerFilterFromQuery(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	offers, err := h.offerSvc.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{
		"offers": offers,
		"count":  len(offers),
	})
}

// GetOffer returns one offer.
// GET /p2p/offers/{id}
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	o, err := h.offerSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"offer": o})
}

// SetOfferStatus applies a maker's pause/resume/cancel.
// PATCH /p2p/offers/{id}/status
func (h *Handler) SetOfferStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, _ := mw.GetUserID(ctx)
	offerID := chi.URLParam(r, "id")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}

	if err := h.offerSvc.SetStatus(ctx, offerID, userID, domain.OfferStatus(req.Status)); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusOK, map[string]interface{}{"offer_id": offerID, "status": req.Status})
}

// AcceptOffer accepts a slice of an offer, creating an escrowed trade.
// POST /p2p/offers/{id}/accept
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, _ := mw.GetUserID(ctx)
	offerID := chi.URLParam(r, "id")

	var req escrow.AcceptOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}
	req.OfferID = offerID
	req.TakerID = userID
	if req.TakerWallet == "" {
		if wallet, ok := mw.GetWalletAddress(ctx); ok {
			req.TakerWallet = wallet
		}
	}

	h.logger.Info("Offer acceptance requested",
		zap.String("offer_id", offerID),
		zap.String("taker_id", userID))

	t, err := h.coordinator.AcceptOffer(ctx, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondData(w, http.StatusCreated, map[string]interface{}{"trade": t})
}

func offerFilterFromQuery(r *http.Request) (*domain.OfferFilter, error) {
	q := r.URL.Query()
	filter := &domain.OfferFilter{
		Token:        q.Get("token"),
		FiatCurrency: q.Get("fiat"),
		SortBy:       domain.OfferSortKey(q.Get("sort_by")),
		SortDesc:     q.Get("sort_dir") == "desc",
		VerifiedOnly: q.Get("verified_only") == "true",
	}

	if v := q.Get("payment_methods"); v != "" {
		for _, part := range strings.Split(v, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			filter.PaymentMethodIDs = append(filter.PaymentMethodIDs, id)
		}
	}
	if v := q.Get("min_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		filter.MinAmount = &d
	}
	if v := q.Get("max_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		filter.MaxAmount = &d
	}
	if v := q.Get("trust_levels"); v != "" {
		filter.MakerTrustLevels = strings.Split(v, ",")
	}
	if v := q.Get("min_completion_rate"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}
		filter.MinCompletionRate = &f
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		filter.Offset = n
	}
	return filter, nil
}
