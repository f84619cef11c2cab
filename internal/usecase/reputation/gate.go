// internal/usecase/reputation/gate.go
package reputation

import (
	"context"
	"errors"
	"fmt"

	"p2p-escrow-service/internal/domain"
	"p2p-escrow-service/internal/repository"

	"go.uber.org/zap"
)

// Gate is the read-only eligibility check consulted at offer-acceptance
// time. It runs strictly before the offer book reservation, so a failed
// check never touches shared mutable state.
type Gate struct {
	reps   repository.ReputationStore
	logger *zap.Logger
}

func NewGate(reps repository.ReputationStore, logger *zap.Logger) *Gate {
	return &Gate{reps: reps, logger: logger}
}

// CheckEligibility verifies the taker against the offer's thresholds.
// Too few completed trades, or no reputation record at all against any
// non-zero threshold, fails with domain.ErrInsufficientHistory; a score
// shortfall fails with domain.ErrNotEligible.
func (g *Gate) CheckEligibility(ctx context.Context, takerID string, offer *domain.Offer) error {
	if offer.MinCompletedTrades == 0 && offer.MinReputation == 0 {
		return nil
	}

	rep, err := g.reps.GetByUserID(ctx, takerID)
	if err != nil {
		if errors.Is(err, domain.ErrReputationNotFound) {
			g.logger.Info("Taker has no reputation record",
				zap.String("taker_id", takerID),
				zap.String("offer_id", offer.ID))
			return domain.ErrInsufficientHistory
		}
		return fmt.Errorf("failed to read reputation: %w", err)
	}

	if rep.CompletedTrades < offer.MinCompletedTrades {
		return fmt.Errorf("completed trades %d below required %d: %w",
			rep.CompletedTrades, offer.MinCompletedTrades, domain.ErrInsufficientHistory)
	}
	if rep.Score < offer.MinReputation {
		return fmt.Errorf("reputation score %.2f below required %.2f: %w",
			rep.Score, offer.MinReputation, domain.ErrNotEligible)
	}
	return nil
}
