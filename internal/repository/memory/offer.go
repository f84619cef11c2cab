// internal/repository/memory/offer.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"p2p-escrow-service/internal/domain"

	"github.com/shopspring/decimal"
)

// OfferStore is a mutex-guarded in-memory offer book. TryReserve runs its
// check-and-decrement under the store lock, which makes concurrent partial
// accepts linearizable: capacity that exists once is consumed once.
type OfferStore struct {
	mu     sync.RWMutex
	offers map[string]*domain.Offer
	reps   *ReputationStore // maker-tier filters read the reputation view
}

// NewOfferStore builds an offer store; reps may be nil when no listing
// filter touches maker reputation.
func NewOfferStore(reps *ReputationStore) *OfferStore {
	return &OfferStore{
		offers: make(map[string]*domain.Offer),
		reps:   reps,
	}
}

func (s *OfferStore) Create(ctx context.Context, o *domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offers[o.ID]; exists {
		return fmt.Errorf("offer %s already exists", o.ID)
	}
	copied := *o
	s.offers[o.ID] = &copied
	return nil
}

func (s *OfferStore) GetByID(ctx context.Context, id string) (*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offers[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *OfferStore) List(ctx context.Context, filter *domain.OfferFilter) ([]*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	matched := []*domain.Offer{}
	for _, o := range s.offers {
		if !o.Reservable(now) {
			continue
		}
		if filter.Token != "" && o.Token != filter.Token {
			continue
		}
		if filter.FiatCurrency != "" && o.FiatCurrency != filter.FiatCurrency {
			continue
		}
		if len(filter.PaymentMethodIDs) > 0 && !containsInt(filter.PaymentMethodIDs, o.PaymentMethodID) {
			continue
		}
		if filter.MinAmount != nil && o.RemainingAmount.LessThan(*filter.MinAmount) {
			continue
		}
		if filter.MaxAmount != nil && o.RemainingAmount.GreaterThan(*filter.MaxAmount) {
			continue
		}
		if !s.makerMatches(ctx, o.MakerID, filter) {
			continue
		}
		copied := *o
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		var less bool
		if filter.SortBy == domain.OfferSortByPrice {
			less = matched[i].PricePerUnit.LessThan(matched[j].PricePerUnit)
		} else {
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if filter.SortDesc {
			return !less
		}
		return less
	})

	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], nil
}

func (s *OfferStore) TryReserve(ctx context.Context, offerID string, amount decimal.Decimal) (*domain.Offer, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	if !o.Reservable(time.Now()) {
		return nil, domain.ErrOfferNotOpen
	}
	if err := o.CheckOrderBounds(amount); err != nil {
		return nil, err
	}
	if amount.GreaterThan(o.RemainingAmount) {
		return nil, domain.ErrAmountExceedsRemaining
	}

	o.RemainingAmount = o.RemainingAmount.Sub(amount)
	if o.RemainingAmount.IsZero() {
		o.Status = domain.OfferLocked
	}
	o.UpdatedAt = time.Now()

	copied := *o
	return &copied, nil
}

func (s *OfferStore) Restore(ctx context.Context, offerID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return domain.ErrOfferNotFound
	}
	restored := o.RemainingAmount.Add(amount)
	if restored.GreaterThan(o.TotalAmount) {
		return fmt.Errorf("restore %s to offer %s would exceed total %s: %w",
			amount, offerID, o.TotalAmount, domain.ErrInvalidAmount)
	}
	o.RemainingAmount = restored
	// An offer past its expiry stays completed; only reservations are undone.
	if (o.Status == domain.OfferLocked || o.Status == domain.OfferCompleted) && time.Now().Before(o.ExpiresAt) {
		o.Status = domain.OfferOpen
	}
	o.UpdatedAt = time.Now()
	return nil
}

func (s *OfferStore) SetStatus(ctx context.Context, offerID string, expected, status domain.OfferStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return domain.ErrOfferNotFound
	}
	if o.Status != expected {
		return domain.ErrStaleState
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}

func (s *OfferStore) ExpireOpen(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, o := range s.offers {
		if (o.Status == domain.OfferOpen || o.Status == domain.OfferPaused) && o.ExpiresAt.Before(now) {
			o.Status = domain.OfferCompleted
			o.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *OfferStore) makerMatches(ctx context.Context, makerID string, filter *domain.OfferFilter) bool {
	needsRep := filter.VerifiedOnly || len(filter.MakerTrustLevels) > 0 || filter.MinCompletionRate != nil
	if !needsRep {
		return true
	}
	if s.reps == nil {
		return false
	}
	rep, err := s.reps.GetByUserID(ctx, makerID)
	if err != nil {
		return false
	}
	if filter.VerifiedOnly && !rep.VerifiedMerchant {
		return false
	}
	if len(filter.MakerTrustLevels) > 0 && !containsString(filter.MakerTrustLevels, rep.TrustLevel) {
		return false
	}
	if filter.MinCompletionRate != nil && rep.CompletionRate() < *filter.MinCompletionRate {
		return false
	}
	return true
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
