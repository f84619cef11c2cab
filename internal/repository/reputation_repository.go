// internal/repository/reputation_repository.go
package repository

import (
	"context"
	"fmt"

	"p2p-escrow-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ReputationRepository stores the read model published by the external
// reputation scorer. The core never computes scores, it only reads them.
type ReputationRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewReputationRepository(pool *pgxpool.Pool, logger *zap.Logger) *ReputationRepository {
	return &ReputationRepository{pool: pool, logger: logger}
}

// GetByUserID retrieves a user's reputation record.
func (r *ReputationRepository) GetByUserID(ctx context.Context, userID string) (*domain.Reputation, error) {
	query := `
		SELECT user_id, total_trades, completed_trades, cancelled_trades,
			   disputed_trades, score, trust_level, verified_merchant, updated_at
		FROM reputation
		WHERE user_id = $1
	`

	rep := &domain.Reputation{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rep.UserID, &rep.TotalTrades, &rep.CompletedTrades, &rep.CancelledTrades,
		&rep.DisputedTrades, &rep.Score, &rep.TrustLevel, &rep.VerifiedMerchant,
		&rep.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrReputationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation: %w", err)
	}
	return rep, nil
}

// Upsert replaces a user's reputation record with the scorer's latest view.
func (r *ReputationRepository) Upsert(ctx context.Context, rep *domain.Reputation) error {
	query := `
		INSERT INTO reputation (
			user_id, total_trades, completed_trades, cancelled_trades,
			disputed_trades, score, trust_level, verified_merchant, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_trades = EXCLUDED.total_trades,
			completed_trades = EXCLUDED.completed_trades,
			cancelled_trades = EXCLUDED.cancelled_trades,
			disputed_trades = EXCLUDED.disputed_trades,
			score = EXCLUDED.score,
			trust_level = EXCLUDED.trust_level,
			verified_merchant = EXCLUDED.verified_merchant,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		rep.UserID, rep.TotalTrades, rep.CompletedTrades, rep.CancelledTrades,
		rep.DisputedTrades, rep.Score, rep.TrustLevel, rep.VerifiedMerchant,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert reputation: %w", err)
	}

	r.logger.Info("Reputation updated",
		zap.String("user_id", rep.UserID),
		zap.Float64("score", rep.Score))
	return nil
}
