// internal/worker/sweeper.go
package worker

import (
	"context"
	"time"

	"p2p-escrow-service/internal/pkg/utils"
	"p2p-escrow-service/internal/usecase/trade"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sweepLockKey = "p2p:sweeper:lock"

// DeadlineSweeper periodically applies deadline-driven trade transitions
// and offer expiry. Sweeping is idempotent, so overlap between instances is
// harmless; the redis leader lock just keeps replicas from all doing the
// same work every tick.
type DeadlineSweeper struct {
	trades   *trade.Service
	rdb      *redis.Client
	interval time.Duration
	logger   *zap.Logger

	instanceID string
}

func NewDeadlineSweeper(trades *trade.Service, rdb *redis.Client, interval time.Duration, logger *zap.Logger) *DeadlineSweeper {
	return &DeadlineSweeper{
		trades:     trades,
		rdb:        rdb,
		interval:   interval,
		logger:     logger,
		instanceID: utils.GenerateID("swp"),
	}
}

// Run blocks until ctx is cancelled.
func (w *DeadlineSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Deadline sweeper started",
		zap.String("instance_id", w.instanceID),
		zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Deadline sweeper stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *DeadlineSweeper) tick(ctx context.Context) {
	if !w.acquireLock(ctx) {
		return
	}

	swept, err := w.trades.SweepExpired(ctx)
	if err != nil {
		w.logger.Error("Sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		w.logger.Info("Sweep applied deadline transitions", zap.Int("count", swept))
	}
}

// acquireLock takes the leader lock for roughly one interval. Fails open:
// if redis is unavailable the sweep still runs, relying on idempotence.
func (w *DeadlineSweeper) acquireLock(ctx context.Context) bool {
	if w.rdb == nil {
		return true
	}
	ok, err := w.rdb.SetNX(ctx, sweepLockKey, w.instanceID, w.interval).Result()
	if err != nil {
		w.logger.Warn("Sweeper lock unavailable, sweeping anyway", zap.Error(err))
		return true
	}
	return ok
}
