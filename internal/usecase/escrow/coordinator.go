// internal/usecase/escrow/coordinator.go
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"p2p-escrow-service/internal/domain"
	"p2p-escrow-service/internal/pkg/utils"
	"p2p-escrow-service/internal/repository"
	"p2p-escrow-service/internal/usecase/reputation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Coordinator orchestrates offer acceptance: eligibility gate, offer book
// reservation, maker escrow lock and trade creation behave as one logical
// unit. The reserve and the lock live in different stores and cannot share
// a transaction, so the reserve is compensated whenever a later step fails.
type Coordinator struct {
	offers repository.OfferStore
	ledger repository.LedgerStore
	trades repository.TradeStore
	gate   *reputation.Gate
	logger *zap.Logger

	now func() time.Time
}

func NewCoordinator(
	offers repository.OfferStore,
	ledger repository.LedgerStore,
	trades repository.TradeStore,
	gate *reputation.Gate,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		offers: offers,
		ledger: ledger,
		trades: trades,
		gate:   gate,
		logger: logger,
		now:    time.Now,
	}
}

// AcceptOfferRequest is the taker's input. A nil Amount takes the offer's
// full remaining quantity.
type AcceptOfferRequest struct {
	OfferID     string           `json:"offer_id"`
	TakerID     string           `json:"-"`
	TakerWallet string           `json:"taker_wallet"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

// AcceptOffer accepts a slice of an offer and returns the created trade.
//
// Order matters: the gate runs before any mutation; the reservation is the
// point of no return; a failed maker lock is compensated by restoring the
// reserved quantity so tokens are never locked without an open trade and an
// offer is never short capacity without one.
func (c *Coordinator) AcceptOffer(ctx context.Context, req AcceptOfferRequest) (*domain.Trade, error) {
	offer, err := c.offers.GetByID(ctx, req.OfferID)
	if err != nil {
		return nil, err
	}
	if offer.MakerID == req.TakerID {
		return nil, domain.ErrSelfTrade
	}
	if req.TakerWallet == "" {
		return nil, fmt.Errorf("taker wallet is required: %w", domain.ErrInvalidAmount)
	}

	if err := c.gate.CheckEligibility(ctx, req.TakerID, offer); err != nil {
		return nil, err
	}

	prec, err := domain.TokenPrecision(offer.Token)
	if err != nil {
		return nil, err
	}
	amount := offer.RemainingAmount
	if req.Amount != nil {
		amount = req.Amount.Truncate(prec)
	}
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	// Point of no return: from here every failure must compensate.
	snapshot, err := c.offers.TryReserve(ctx, req.OfferID, amount)
	if err != nil {
		return nil, err
	}

	tradeID := utils.GenerateID("trd")
	if err := c.ledger.Lock(ctx, snapshot.MakerID, snapshot.Token, amount, tradeID); err != nil {
		if restoreErr := c.offers.Restore(ctx, req.OfferID, amount); restoreErr != nil {
			c.logger.Error("COMPENSATION FAILED: offer under-reserved with no matching trade",
				zap.String("offer_id", req.OfferID),
				zap.String("taker_id", req.TakerID),
				zap.String("amount", amount.String()),
				zap.NamedError("lock_error", err),
				zap.NamedError("restore_error", restoreErr))
			return nil, fmt.Errorf("restore after failed lock on offer %s: %v: %w",
				req.OfferID, restoreErr, domain.ErrCompensationFailed)
		}
		if errors.Is(err, domain.ErrInsufficientBalance) {
			c.logger.Warn("Maker balance insufficient at acceptance",
				zap.String("offer_id", req.OfferID),
				zap.String("maker_id", snapshot.MakerID),
				zap.String("amount", amount.String()))
			return nil, domain.ErrMakerInsufficientBalance
		}
		return nil, fmt.Errorf("failed to lock maker escrow: %w", err)
	}

	now := c.now()
	trade := &domain.Trade{
		ID:                 tradeID,
		OfferID:            snapshot.ID,
		MakerID:            snapshot.MakerID,
		TakerID:            req.TakerID,
		TakerWallet:        req.TakerWallet,
		Token:              snapshot.Token,
		FiatCurrency:       snapshot.FiatCurrency,
		CryptoAmount:       amount,
		FiatAmount:         domain.FiatAmountFor(amount, snapshot.PricePerUnit),
		PricePerUnit:       snapshot.PricePerUnit,
		EscrowLockedAmount: amount,
		Status:             domain.TradePending,
		PaymentDeadline:    now.Add(time.Duration(snapshot.TimeLimitMinutes) * time.Minute),
		CreatedAt:          now,
	}

	if err := c.trades.Create(ctx, trade); err != nil {
		// Unwind both earlier steps; failure here is as loud as the
		// reserve compensation failing.
		unlockErr := c.ledger.Unlock(ctx, snapshot.MakerID, snapshot.Token, amount, tradeID)
		restoreErr := c.offers.Restore(ctx, req.OfferID, amount)
		if unlockErr != nil || restoreErr != nil {
			c.logger.Error("COMPENSATION FAILED: trade create rollback incomplete",
				zap.String("offer_id", req.OfferID),
				zap.String("trade_id", tradeID),
				zap.NamedError("create_error", err),
				zap.NamedError("unlock_error", unlockErr),
				zap.NamedError("restore_error", restoreErr))
			return nil, fmt.Errorf("rollback of trade %s incomplete: %w", tradeID, domain.ErrCompensationFailed)
		}
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}

	c.logger.Info("Offer accepted",
		zap.String("trade_id", trade.ID),
		zap.String("offer_id", offer.ID),
		zap.String("maker_id", trade.MakerID),
		zap.String("taker_id", trade.TakerID),
		zap.String("crypto_amount", trade.CryptoAmount.String()),
		zap.String("fiat_amount", trade.FiatAmount.String()))
	return trade, nil
}
