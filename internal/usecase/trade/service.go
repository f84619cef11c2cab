// internal/usecase/trade/service.go
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"p2p-escrow-service/internal/domain"
	"p2p-escrow-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service owns the trade state machine from acceptance to completion,
// cancellation or dispute. Every transition is gated to one role and
// applied optimistically: the winner of a race moves the trade, losers
// get domain.ErrStaleState.
type Service struct {
	trades repository.TradeStore
	offers repository.OfferStore
	ledger repository.LedgerStore
	logger *zap.Logger

	now func() time.Time
}

func NewService(
	trades repository.TradeStore,
	offers repository.OfferStore,
	ledger repository.LedgerStore,
	logger *zap.Logger,
) *Service {
	return &Service{
		trades: trades,
		offers: offers,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}
}

// GetTrade returns a trade visible to one of its participants.
func (s *Service) GetTrade(ctx context.Context, tradeID, actorID string) (*domain.Trade, error) {
	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.RoleOf(actorID) == domain.RoleNone {
		return nil, domain.ErrTradeNotFound
	}
	return t, nil
}

// ListTrades returns the caller's trades for the polling read model.
func (s *Service) ListTrades(ctx context.Context, filter *domain.TradeFilter) ([]*domain.Trade, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.trades.List(ctx, filter)
}

// MarkPaymentSent is the taker attesting the off-chain fiat payment was
// made. Only the taker can make that claim.
func (s *Service) MarkPaymentSent(ctx context.Context, tradeID, actorID, paymentProofRef string) (*domain.Trade, error) {
	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.RoleOf(actorID) != domain.RoleTaker {
		return nil, domain.ErrRoleNotAllowed
	}

	now := s.now()
	confirmBy := now.Add(domain.ConfirmationWindow)
	upd := domain.TradeUpdate{
		Status:               domain.TradePaymentSent,
		TakerMarkedPaidAt:    &now,
		ConfirmationDeadline: &confirmBy,
	}
	if paymentProofRef != "" {
		upd.PaymentProofRef = &paymentProofRef
	}

	updated, err := s.trades.Transition(ctx, tradeID, domain.TradePending, upd)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment marked sent",
		zap.String("trade_id", tradeID),
		zap.String("taker_id", actorID),
		zap.Time("confirmation_deadline", confirmBy))
	return updated, nil
}

// ConfirmPayment is the maker attesting the fiat arrived; it releases the
// escrow to the taker. Only the maker can confirm, and only once: a second
// confirm loses the optimistic transition and gets ErrStaleState.
func (s *Service) ConfirmPayment(ctx context.Context, tradeID, actorID string) (*domain.Trade, error) {
	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.RoleOf(actorID) != domain.RoleMaker {
		return nil, domain.ErrRoleNotAllowed
	}

	now := s.now()
	zero := decimal.Zero
	updated, err := s.trades.Transition(ctx, tradeID, domain.TradePaymentSent, domain.TradeUpdate{
		Status:             domain.TradeCompleted,
		EscrowLockedAmount: &zero,
		MakerConfirmedAt:   &now,
		CompletedAt:        &now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.ledger.ReleaseTransfer(ctx, t.MakerID, t.TakerID, t.Token, t.CryptoAmount, t.ID); err != nil {
		// The trade row says completed but the value did not move; this
		// must page someone, never be retried silently here.
		s.logger.Error("COMPENSATION FAILED: escrow release after confirm failed",
			zap.String("trade_id", t.ID),
			zap.String("maker_id", t.MakerID),
			zap.String("taker_id", t.TakerID),
			zap.String("amount", t.CryptoAmount.String()),
			zap.Error(err))
		return nil, fmt.Errorf("release escrow for trade %s: %v: %w", t.ID, err, domain.ErrCompensationFailed)
	}

	s.logger.Info("Trade completed",
		zap.String("trade_id", t.ID),
		zap.String("amount", t.CryptoAmount.String()))
	return updated, nil
}

// Cancel aborts a pending trade. Either party may cancel while no payment
// has been claimed; afterwards the only exit is the dispute path.
func (s *Service) Cancel(ctx context.Context, tradeID, actorID string) (*domain.Trade, error) {
	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.RoleOf(actorID) == domain.RoleNone {
		return nil, domain.ErrRoleNotAllowed
	}
	return s.cancelPending(ctx, t, "cancelled by "+string(t.RoleOf(actorID)))
}

// RaiseDispute freezes a payment_sent trade for external arbitration.
// Escrow stays locked; no ledger effect.
func (s *Service) RaiseDispute(ctx context.Context, tradeID, actorID string) (*domain.Trade, error) {
	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.RoleOf(actorID) == domain.RoleNone {
		return nil, domain.ErrRoleNotAllowed
	}

	updated, err := s.trades.Transition(ctx, tradeID, domain.TradePaymentSent, domain.TradeUpdate{
		Status: domain.TradeDisputed,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("Trade disputed",
		zap.String("trade_id", tradeID),
		zap.String("raised_by", actorID))
	return updated, nil
}

// Arbitrate applies an external arbitrator's verdict to a disputed trade:
// release the escrow to the taker or refund it to the maker.
func (s *Service) Arbitrate(ctx context.Context, tradeID string, outcome domain.ArbitrationOutcome) (*domain.Trade, error) {
	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	zero := decimal.Zero

	switch outcome {
	case domain.ArbitrationRelease:
		updated, err := s.trades.Transition(ctx, tradeID, domain.TradeDisputed, domain.TradeUpdate{
			Status:             domain.TradeCompleted,
			EscrowLockedAmount: &zero,
			CompletedAt:        &now,
		})
		if err != nil {
			return nil, err
		}
		if err := s.ledger.ReleaseTransfer(ctx, t.MakerID, t.TakerID, t.Token, t.CryptoAmount, t.ID); err != nil {
			s.logger.Error("COMPENSATION FAILED: arbitration release failed",
				zap.String("trade_id", t.ID), zap.Error(err))
			return nil, fmt.Errorf("arbitration release for trade %s: %v: %w", t.ID, err, domain.ErrCompensationFailed)
		}
		s.logger.Info("Arbitration released escrow to taker", zap.String("trade_id", t.ID))
		return updated, nil

	case domain.ArbitrationRefund:
		updated, err := s.trades.Transition(ctx, tradeID, domain.TradeDisputed, domain.TradeUpdate{
			Status:             domain.TradeRefunded,
			EscrowLockedAmount: &zero,
			CompletedAt:        &now,
		})
		if err != nil {
			return nil, err
		}
		if err := s.returnEscrow(ctx, t); err != nil {
			return nil, err
		}
		s.logger.Info("Arbitration refunded escrow to maker", zap.String("trade_id", t.ID))
		return updated, nil

	default:
		return nil, fmt.Errorf("unknown arbitration outcome %q", outcome)
	}
}

// SweepExpired applies deadline transitions: pending trades past their
// payment deadline cancel; payment_sent trades past their confirmation
// deadline escalate to disputed (the taker may already have paid, so
// auto-refund would punish the wrong side). Idempotent: a trade that
// already moved on simply loses the optimistic transition.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.trades.ListDeadlineExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired trades: %w", err)
	}

	swept := 0
	for _, t := range expired {
		switch t.Status {
		case domain.TradePending:
			if _, err := s.cancelPending(ctx, t, "payment deadline expired"); err != nil {
				if errors.Is(err, domain.ErrStaleState) {
					continue // lost the race to a live transition; fine
				}
				return swept, err
			}
			swept++
		case domain.TradePaymentSent:
			if _, err := s.trades.Transition(ctx, t.ID, domain.TradePaymentSent, domain.TradeUpdate{
				Status: domain.TradeDisputed,
			}); err != nil {
				if errors.Is(err, domain.ErrStaleState) {
					continue
				}
				return swept, err
			}
			s.logger.Warn("Confirmation deadline expired, trade escalated to dispute",
				zap.String("trade_id", t.ID),
				zap.String("maker_id", t.MakerID))
			swept++
		}
	}

	if _, err := s.offers.ExpireOpen(ctx, now); err != nil {
		return swept, err
	}
	return swept, nil
}

// cancelPending moves a pending trade to cancelled and runs the
// compensating offer restore and maker unlock. The transition goes first:
// whoever wins it owns the compensation, so it runs exactly once.
func (s *Service) cancelPending(ctx context.Context, t *domain.Trade, reason string) (*domain.Trade, error) {
	zero := decimal.Zero
	updated, err := s.trades.Transition(ctx, t.ID, domain.TradePending, domain.TradeUpdate{
		Status:             domain.TradeCancelled,
		EscrowLockedAmount: &zero,
	})
	if err != nil {
		return nil, err
	}

	if err := s.returnEscrow(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("Trade cancelled",
		zap.String("trade_id", t.ID),
		zap.String("reason", reason))
	return updated, nil
}

// returnEscrow gives a cancelled/refunded trade's quantity back to the
// offer and unlocks the maker's escrow.
func (s *Service) returnEscrow(ctx context.Context, t *domain.Trade) error {
	restoreErr := s.offers.Restore(ctx, t.OfferID, t.CryptoAmount)
	unlockErr := s.ledger.Unlock(ctx, t.MakerID, t.Token, t.CryptoAmount, t.ID)
	if restoreErr != nil || unlockErr != nil {
		s.logger.Error("COMPENSATION FAILED: escrow return incomplete",
			zap.String("trade_id", t.ID),
			zap.String("offer_id", t.OfferID),
			zap.NamedError("restore_error", restoreErr),
			zap.NamedError("unlock_error", unlockErr))
		return fmt.Errorf("escrow return for trade %s: %w", t.ID, domain.ErrCompensationFailed)
	}
	return nil
}
