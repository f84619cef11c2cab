// internal/domain/trade.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus represents the lifecycle status of a trade.
type TradeStatus string

const (
	// TradePending: escrow locked, waiting for the taker to pay fiat.
	TradePending TradeStatus = "pending"
	// TradePaymentSent: taker claims to have paid; maker must confirm.
	TradePaymentSent TradeStatus = "payment_sent"
	// TradeCompleted: maker confirmed; escrow released to the taker.
	TradeCompleted TradeStatus = "completed"
	// TradeCancelled: aborted while pending; escrow returned to the maker.
	TradeCancelled TradeStatus = "cancelled"
	// TradeDisputed: escrow stays locked pending external arbitration.
	TradeDisputed TradeStatus = "disputed"
	// TradeRefunded: arbitration returned the escrow to the maker.
	TradeRefunded TradeStatus = "refunded"
)

// Terminal reports whether no further transition may be applied.
// Disputed is semi-terminal: it exits only through arbitration.
func (s TradeStatus) Terminal() bool {
	return s == TradeCompleted || s == TradeCancelled || s == TradeRefunded
}

// ConfirmationWindow is how long the maker has to confirm fiat receipt after
// the taker marks the payment sent.
const ConfirmationWindow = 60 * time.Minute

// TradeRole identifies which side of a trade an actor is on.
type TradeRole string

const (
	RoleMaker TradeRole = "maker"
	RoleTaker TradeRole = "taker"
	RoleNone  TradeRole = ""
)

// Trade is one accepted slice of an offer. The price is locked at acceptance;
// fiat amount is computed and rounded once at creation and never recomputed.
// EscrowLockedAmount equals CryptoAmount while the trade is in flight and is
// zero in every terminal state.
type Trade struct {
	ID           string `json:"id"`
	OfferID      string `json:"offer_id"`
	MakerID      string `json:"maker_id"`
	TakerID      string `json:"taker_id"`
	TakerWallet  string `json:"taker_wallet"`
	Token        string `json:"token"`
	FiatCurrency string `json:"fiat_currency"`

	CryptoAmount       decimal.Decimal `json:"crypto_amount"`
	FiatAmount         decimal.Decimal `json:"fiat_amount"`
	PricePerUnit       decimal.Decimal `json:"price_per_unit"`
	EscrowLockedAmount decimal.Decimal `json:"escrow_locked_amount"`

	TakerMarkedPaidAt *time.Time `json:"taker_marked_paid_at,omitempty"`
	PaymentProofRef   *string    `json:"payment_proof_ref,omitempty"`
	MakerConfirmedAt  *time.Time `json:"maker_confirmed_at,omitempty"`

	Status               TradeStatus `json:"status"`
	PaymentDeadline      time.Time   `json:"payment_deadline"`
	ConfirmationDeadline *time.Time  `json:"confirmation_deadline,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	CompletedAt          *time.Time  `json:"completed_at,omitempty"`
}

// RoleOf returns which side of the trade the given user is on.
func (t *Trade) RoleOf(userID string) TradeRole {
	switch userID {
	case t.MakerID:
		return RoleMaker
	case t.TakerID:
		return RoleTaker
	default:
		return RoleNone
	}
}

// FiatAmountFor computes the fiat leg for a crypto slice at the locked price,
// rounded to 2 decimals. Called exactly once, at trade creation.
func FiatAmountFor(cryptoAmount, pricePerUnit decimal.Decimal) decimal.Decimal {
	return cryptoAmount.Mul(pricePerUnit).Round(2)
}

// ArbitrationOutcome is the arbitrator's verdict on a disputed trade.
type ArbitrationOutcome string

const (
	// ArbitrationRelease completes the trade in the taker's favour.
	ArbitrationRelease ArbitrationOutcome = "completed"
	// ArbitrationRefund returns the escrow to the maker.
	ArbitrationRefund ArbitrationOutcome = "refunded"
)

// TradeUpdate is the field set applied by an optimistic transition. A nil
// pointer leaves the column untouched.
type TradeUpdate struct {
	Status               TradeStatus
	EscrowLockedAmount   *decimal.Decimal
	TakerMarkedPaidAt    *time.Time
	PaymentProofRef      *string
	ConfirmationDeadline *time.Time
	MakerConfirmedAt     *time.Time
	CompletedAt          *time.Time
}

// TradeFilter narrows a trade listing for the polling read model.
type TradeFilter struct {
	UserID string      // matches maker or taker
	Role   TradeRole   // optional: restrict to one side
	Status TradeStatus // optional
	Limit  int
	Offset int
}
