// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"p2p-escrow-service/internal/domain"

	"github.com/shopspring/decimal"
)

// LedgerStore is the only component allowed to move value. Every mutating
// call is applied as one atomic unit; mutations to a single (user, token)
// balance are serialized, different balances proceed concurrently.
type LedgerStore interface {
	// Lock moves amount from available to locked.
	// Fails with domain.ErrInsufficientBalance if available < amount.
	Lock(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error

	// Unlock reverses a lock. Never fails for amounts previously locked
	// against the same refID; the caller passes the trade's recorded
	// escrowed amount, it is not recomputed here.
	Unlock(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error

	// ReleaseTransfer atomically decrements from.locked and increments
	// to.available. Fails with domain.ErrLockMismatch if from.locked < amount.
	ReleaseTransfer(ctx context.Context, fromUserID, toUserID, token string, amount decimal.Decimal, refID string) error

	// Credit and Debit are the funding collaborator's entry points.
	Credit(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error
	Debit(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error

	GetBalance(ctx context.Context, userID, token string) (*domain.Balance, error)
	ListBalances(ctx context.Context, userID string) ([]*domain.Balance, error)
}

// OfferStore holds open offers and their remaining escrowable quantity.
type OfferStore interface {
	Create(ctx context.Context, offer *domain.Offer) error
	GetByID(ctx context.Context, id string) (*domain.Offer, error)

	// List returns a snapshot of offers matching the filter.
	List(ctx context.Context, filter *domain.OfferFilter) ([]*domain.Offer, error)

	// TryReserve is the linearizable compare-and-decrement at the heart of
	// offer acceptance: it succeeds only if the offer is open, unexpired,
	// the amount respects order bounds and amount <= remaining; on success
	// it decrements remaining and flips status to locked when it hits zero.
	// Returns the post-decrement offer snapshot.
	TryReserve(ctx context.Context, offerID string, amount decimal.Decimal) (*domain.Offer, error)

	// Restore is the compensating increment on trade cancellation/refund.
	// It reopens a locked or completed offer, but never one the maker
	// cancelled.
	Restore(ctx context.Context, offerID string, amount decimal.Decimal) error

	// SetStatus applies a maker-initiated pause/resume/cancel iff the offer
	// still holds the expected status; a racing change that got there first
	// yields domain.ErrStaleState. Keeps terminal statuses terminal.
	SetStatus(ctx context.Context, offerID string, expected, status domain.OfferStatus) error

	// ExpireOpen flips open/paused offers past their expiry to completed.
	// Driven by the periodic sweep; idempotent.
	ExpireOpen(ctx context.Context, now time.Time) (int64, error)
}

// TradeStore persists trades. State transitions go through Transition, which
// applies the update only if the expected prior status still holds.
type TradeStore interface {
	Create(ctx context.Context, trade *domain.Trade) error
	GetByID(ctx context.Context, id string) (*domain.Trade, error)
	List(ctx context.Context, filter *domain.TradeFilter) ([]*domain.Trade, error)

	// Transition applies upd iff the trade is currently in expected status,
	// returning the updated trade. A trade in any other status yields
	// domain.ErrStaleState; a missing trade yields domain.ErrTradeNotFound.
	Transition(ctx context.Context, tradeID string, expected domain.TradeStatus, upd domain.TradeUpdate) (*domain.Trade, error)

	// ListDeadlineExpired returns pending trades past their payment deadline
	// and payment_sent trades past their confirmation deadline.
	ListDeadlineExpired(ctx context.Context, now time.Time) ([]*domain.Trade, error)
}

// ReputationStore is the read model for the external reputation scorer.
type ReputationStore interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Reputation, error)
	Upsert(ctx context.Context, rep *domain.Reputation) error
}
