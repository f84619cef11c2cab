// internal/repository/memory/trade.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"p2p-escrow-service/internal/domain"
)

// TradeStore is a mutex-guarded in-memory trade table with the same
// optimistic transition contract as the postgres store.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string]*domain.Trade
}

func NewTradeStore() *TradeStore {
	return &TradeStore{trades: make(map[string]*domain.Trade)}
}

func (s *TradeStore) Create(ctx context.Context, t *domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trades[t.ID]; exists {
		return fmt.Errorf("trade %s already exists", t.ID)
	}
	copied := *t
	s.trades[t.ID] = &copied
	return nil
}

func (s *TradeStore) GetByID(ctx context.Context, id string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[id]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *TradeStore) List(ctx context.Context, filter *domain.TradeFilter) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*domain.Trade{}
	for _, t := range s.trades {
		switch filter.Role {
		case domain.RoleMaker:
			if t.MakerID != filter.UserID {
				continue
			}
		case domain.RoleTaker:
			if t.TakerID != filter.UserID {
				continue
			}
		default:
			if filter.UserID != "" && t.MakerID != filter.UserID && t.TakerID != filter.UserID {
				continue
			}
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		copied := *t
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
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

func (s *TradeStore) Transition(ctx context.Context, tradeID string, expected domain.TradeStatus, upd domain.TradeUpdate) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[tradeID]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	if t.Status != expected {
		return nil, domain.ErrStaleState
	}

	t.Status = upd.Status
	if upd.EscrowLockedAmount != nil {
		t.EscrowLockedAmount = *upd.EscrowLockedAmount
	}
	if upd.TakerMarkedPaidAt != nil {
		t.TakerMarkedPaidAt = upd.TakerMarkedPaidAt
	}
	if upd.PaymentProofRef != nil {
		t.PaymentProofRef = upd.PaymentProofRef
	}
	if upd.ConfirmationDeadline != nil {
		t.ConfirmationDeadline = upd.ConfirmationDeadline
	}
	if upd.MakerConfirmedAt != nil {
		t.MakerConfirmedAt = upd.MakerConfirmedAt
	}
	if upd.CompletedAt != nil {
		t.CompletedAt = upd.CompletedAt
	}

	copied := *t
	return &copied, nil
}

func (s *TradeStore) ListDeadlineExpired(ctx context.Context, now time.Time) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Trade
	for _, t := range s.trades {
		expired := (t.Status == domain.TradePending && t.PaymentDeadline.Before(now)) ||
			(t.Status == domain.TradePaymentSent && t.ConfirmationDeadline != nil && t.ConfirmationDeadline.Before(now))
		if expired {
			copied := *t
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
