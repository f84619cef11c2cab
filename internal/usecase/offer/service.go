// internal/usecase/offer/service.go
package offer

import (
	"context"
	"fmt"
	"time"

	"p2p-escrow-service/internal/domain"
	"p2p-escrow-service/internal/pkg/utils"
	"p2p-escrow-service/internal/repository"

	"go.uber.org/zap"
)

const (
	minTimeLimitMinutes     = 5
	maxTimeLimitMinutes     = 24 * 60
	defaultTimeLimitMinutes = 30
	defaultOfferTTL         = 7 * 24 * time.Hour
)

// Service owns maker-facing offer management: posting, listing, pause,
// resume and cancel. Quantity consumption stays with the escrow
// coordinator; this service never touches remaining amounts.
type Service struct {
	offers repository.OfferStore
	logger *zap.Logger

	now func() time.Time
}

func NewService(offers repository.OfferStore, logger *zap.Logger) *Service {
	return &Service{offers: offers, logger: logger, now: time.Now}
}

// Create validates and posts a new offer for the maker.
func (s *Service) Create(ctx context.Context, makerID string, req *domain.CreateOfferRequest) (*domain.Offer, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	prec, err := domain.TokenPrecision(req.Token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(defaultOfferTTL)
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return nil, fmt.Errorf("expires_at must be in the future: %w", domain.ErrInvalidAmount)
		}
		expiresAt = *req.ExpiresAt
	}

	timeLimit := req.TimeLimitMinutes
	if timeLimit == 0 {
		timeLimit = defaultTimeLimitMinutes
	}

	total := req.TotalAmount.Truncate(prec)
	o := &domain.Offer{
		ID:                 utils.GenerateID("off"),
		MakerID:            makerID,
		MakerWallet:        req.MakerWallet,
		Token:              req.Token,
		FiatCurrency:       req.FiatCurrency,
		PricePerUnit:       req.PricePerUnit,
		TotalAmount:        total,
		RemainingAmount:    total,
		PaymentMethodID:    req.PaymentMethodID,
		MinOrderAmount:     req.MinOrderAmount,
		MaxOrderAmount:     req.MaxOrderAmount,
		TimeLimitMinutes:   timeLimit,
		MinCompletedTrades: req.MinCompletedTrades,
		MinReputation:      req.MinReputation,
		Status:             domain.OfferOpen,
		CreatedAt:          now,
		ExpiresAt:          expiresAt,
		UpdatedAt:          now,
	}

	if err := s.offers.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns one offer.
func (s *Service) Get(ctx context.Context, offerID string) (*domain.Offer, error) {
	return s.offers.GetByID(ctx, offerID)
}

// List returns a snapshot of open offers matching the filter.
func (s *Service) List(ctx context.Context, filter *domain.OfferFilter) ([]*domain.Offer, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.SortBy == "" {
		filter.SortBy = domain.OfferSortByPrice
	}
	return s.offers.List(ctx, filter)
}

// SetStatus applies a maker's pause/resume/cancel. Cancel is terminal and
// only blocks new reservations; trades already created ride out their own
// lifecycle untouched. The write carries the status the rules were checked
// against, so a concurrent change invalidates this call instead of being
// overwritten.
func (s *Service) SetStatus(ctx context.Context, offerID, makerID string, status domain.OfferStatus) error {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return err
	}
	if o.MakerID != makerID {
		return domain.ErrNotOfferOwner
	}

	switch status {
	case domain.OfferPaused:
		if o.Status != domain.OfferOpen {
			return domain.ErrOfferNotOpen
		}
	case domain.OfferOpen:
		if o.Status != domain.OfferPaused {
			return domain.ErrOfferNotOpen
		}
	case domain.OfferCancelled:
		if o.Status.Terminal() {
			return domain.ErrOfferNotOpen
		}
	default:
		return fmt.Errorf("status %q is not maker-settable", status)
	}

	if err := s.offers.SetStatus(ctx, offerID, o.Status, status); err != nil {
		return err
	}

	s.logger.Info("Offer status changed",
		zap.String("offer_id", offerID),
		zap.String("maker_id", makerID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(status)))
	return nil
}

func (s *Service) validateCreateRequest(req *domain.CreateOfferRequest) error {
	if req.Token == "" || req.FiatCurrency == "" {
		return fmt.Errorf("token and fiat currency are required: %w", domain.ErrInvalidAmount)
	}
	if req.MakerWallet == "" {
		return fmt.Errorf("maker wallet is required: %w", domain.ErrInvalidAmount)
	}
	if !req.PricePerUnit.IsPositive() {
		return fmt.Errorf("price per unit must be positive: %w", domain.ErrInvalidAmount)
	}
	if !req.TotalAmount.IsPositive() {
		return fmt.Errorf("total amount must be positive: %w", domain.ErrInvalidAmount)
	}
	if req.MinOrderAmount != nil && !req.MinOrderAmount.IsPositive() {
		return fmt.Errorf("min order amount must be positive: %w", domain.ErrInvalidAmount)
	}
	if req.MaxOrderAmount != nil && !req.MaxOrderAmount.IsPositive() {
		return fmt.Errorf("max order amount must be positive: %w", domain.ErrInvalidAmount)
	}
	if req.MinOrderAmount != nil && req.MaxOrderAmount != nil &&
		req.MinOrderAmount.GreaterThan(*req.MaxOrderAmount) {
		return fmt.Errorf("min order amount exceeds max: %w", domain.ErrInvalidAmount)
	}
	if req.MinOrderAmount != nil && req.MinOrderAmount.GreaterThan(req.TotalAmount) {
		return fmt.Errorf("min order amount exceeds total: %w", domain.ErrInvalidAmount)
	}
	if req.TimeLimitMinutes != 0 &&
		(req.TimeLimitMinutes < minTimeLimitMinutes || req.TimeLimitMinutes > maxTimeLimitMinutes) {
		return fmt.Errorf("time limit must be between %d and %d minutes: %w",
			minTimeLimitMinutes, maxTimeLimitMinutes, domain.ErrInvalidAmount)
	}
	if req.MinCompletedTrades < 0 || req.MinReputation < 0 {
		return fmt.Errorf("eligibility thresholds must not be negative: %w", domain.ErrInvalidAmount)
	}
	return nil
}
