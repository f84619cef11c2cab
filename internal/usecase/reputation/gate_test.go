// internal/usecase/reputation/gate_test.go
package reputation

import (
	"context"
	"testing"

	"p2p-escrow-service/internal/domain"
	"p2p-escrow-service/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckEligibilityNoThresholds(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(memory.NewReputationStore(), zap.NewNop())

	// An unthresholded offer admits a taker with no history at all.
	err := gate.CheckEligibility(ctx, "usr_new", &domain.Offer{ID: "off_1"})
	assert.NoError(t, err)
}

func TestCheckEligibilityNoRecord(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(memory.NewReputationStore(), zap.NewNop())

	err := gate.CheckEligibility(ctx, "usr_new", &domain.Offer{
		ID: "off_1", MinCompletedTrades: 5,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientHistory)

	err = gate.CheckEligibility(ctx, "usr_new", &domain.Offer{
		ID: "off_1", MinReputation: 4.0,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientHistory)
}

func TestCheckEligibilityThresholds(t *testing.T) {
	ctx := context.Background()
	reps := memory.NewReputationStore()
	gate := NewGate(reps, zap.NewNop())

	require.NoError(t, reps.Upsert(ctx, &domain.Reputation{
		UserID: "usr_taker", TotalTrades: 10, CompletedTrades: 8, Score: 4.2,
	}))

	offer := &domain.Offer{ID: "off_1", MinCompletedTrades: 5, MinReputation: 4.0}
	assert.NoError(t, gate.CheckEligibility(ctx, "usr_taker", offer))

	tooManyTrades := &domain.Offer{ID: "off_1", MinCompletedTrades: 9}
	assert.ErrorIs(t, gate.CheckEligibility(ctx, "usr_taker", tooManyTrades), domain.ErrInsufficientHistory)

	tooHighScore := &domain.Offer{ID: "off_1", MinReputation: 4.5}
	assert.ErrorIs(t, gate.CheckEligibility(ctx, "usr_taker", tooHighScore), domain.ErrNotEligible)

	// Boundary values pass.
	exact := &domain.Offer{ID: "off_1", MinCompletedTrades: 8, MinReputation: 4.2}
	assert.NoError(t, gate.CheckEligibility(ctx, "usr_taker", exact))
}
