// internal/handler/rest/handler.go
package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"p2p-escrow-service/internal/domain"
	"p2p-escrow-service/internal/usecase/escrow"
	"p2p-escrow-service/internal/usecase/offer"
	"p2p-escrow-service/internal/usecase/trade"

	"p2p-escrow-service/internal/repository"

	"go.uber.org/zap"
)

type Handler struct {
	offerSvc    *offer.Service
	tradeSvc    *trade.Service
	coordinator *escrow.Coordinator
	ledger      repository.LedgerStore
	reputation  repository.ReputationStore
	logger      *zap.Logger
}

func NewHandler(
	offerSvc *offer.Service,
	tradeSvc *trade.Service,
	coordinator *escrow.Coordinator,
	ledger repository.LedgerStore,
	reputation repository.ReputationStore,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		offerSvc:    offerSvc,
		tradeSvc:    tradeSvc,
		coordinator: coordinator,
		ledger:      ledger,
		reputation:  reputation,
		logger:      logger,
	}
}

// ============================================================================
// RESPONSE HELPERS
// ============================================================================

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondData(w http.ResponseWriter, status int, data interface{}) {
	h.respondJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	h.respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}

// statusFor maps the error taxonomy onto HTTP statuses: bad input 400,
// eligibility 403, lookups 404, lost races 409, economic failures 422,
// compensation failures 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSelfTrade):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotEligible),
		errors.Is(err, domain.ErrInsufficientHistory),
		errors.Is(err, domain.ErrRoleNotAllowed),
		errors.Is(err, domain.ErrNotOfferOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrOfferNotFound),
		errors.Is(err, domain.ErrTradeNotFound),
		errors.Is(err, domain.ErrBalanceNotFound),
		errors.Is(err, domain.ErrReputationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOfferNotOpen),
		errors.Is(err, domain.ErrAmountExceedsRemaining),
		errors.Is(err, domain.ErrBelowMinOrder),
		errors.Is(err, domain.ErrAboveMaxOrder),
		errors.Is(err, domain.ErrStaleState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrLockMismatch),
		errors.Is(err, domain.ErrMakerInsufficientBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Health reports liveness.
// GET /p2p/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("P2P escrow service is running"))
}
