// internal/repository/memory/reputation.go
package memory

import (
	"context"
	"sync"
	"time"

	"p2p-escrow-service/internal/domain"
)

// ReputationStore is an in-memory reputation read model.
type ReputationStore struct {
	mu   sync.RWMutex
	reps map[string]*domain.Reputation
}

func NewReputationStore() *ReputationStore {
	return &ReputationStore{reps: make(map[string]*domain.Reputation)}
}

func (s *ReputationStore) GetByUserID(ctx context.Context, userID string) (*domain.Reputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.reps[userID]
	if !ok {
		return nil, domain.ErrReputationNotFound
	}
	copied := *rep
	return &copied, nil
}

func (s *ReputationStore) Upsert(ctx context.Context, rep *domain.Reputation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rep
	copied.UpdatedAt = time.Now()
	s.reps[rep.UserID] = &copied
	return nil
}
