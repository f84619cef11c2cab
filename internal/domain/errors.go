// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Validation / lookup
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrSelfTrade     = errors.New("maker cannot accept own offer")
	ErrNotOfferOwner = errors.New("not the offer owner")

	ErrOfferNotFound      = errors.New("offer not found")
	ErrTradeNotFound      = errors.New("trade not found")
	ErrBalanceNotFound    = errors.New("balance not found")
	ErrReputationNotFound = errors.New("reputation not found")
)

// Eligibility, rejected strictly before any state change.
var (
	ErrNotEligible         = errors.New("taker not eligible for offer")
	ErrInsufficientHistory = errors.New("insufficient trade history")
)

// Concurrency: the caller lost a race; safe to retry after re-reading state.
var (
	ErrOfferNotOpen           = errors.New("offer not open")
	ErrAmountExceedsRemaining = errors.New("amount exceeds remaining")
	ErrBelowMinOrder          = errors.New("amount below minimum order")
	ErrAboveMaxOrder          = errors.New("amount above maximum order")
	ErrStaleState             = errors.New("stale trade state")
)

// Economic invariant violations, never retried automatically.
var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrLockMismatch             = errors.New("locked amount mismatch")
	ErrMakerInsufficientBalance = errors.New("maker has insufficient balance")
)

// ErrCompensationFailed means a rollback after a partial escrow acceptance
// itself failed, leaving an offer under-reserved with no matching trade.
// It must be surfaced loudly and never swallowed.
var ErrCompensationFailed = errors.New("compensation failed")

// Role gating on trade transitions.
var ErrRoleNotAllowed = errors.New("actor role not allowed for this transition")

// InsufficientBalanceError carries the amounts behind an
// ErrInsufficientBalance for logs and API responses.
type InsufficientBalanceError struct {
	UserID    string
	Token     string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: user=%s token=%s required=%s available=%s",
		e.UserID, e.Token, e.Required.String(), e.Available.String())
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
