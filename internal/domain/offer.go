// internal/domain/offer.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus represents the lifecycle status of an offer.
type OfferStatus string

const (
	// OfferOpen accepts new reservations.
	OfferOpen OfferStatus = "open"
	// OfferPaused is maker-initiated and reversible.
	OfferPaused OfferStatus = "paused"
	// OfferLocked means remaining amount hit zero; reopens if a backing
	// trade cancels and returns quantity.
	OfferLocked OfferStatus = "locked"
	// OfferCompleted means the offer expired or was fully consumed for good.
	OfferCompleted OfferStatus = "completed"
	// OfferCancelled is maker-initiated and terminal.
	OfferCancelled OfferStatus = "cancelled"
)

// Terminal reports whether no new reservations may ever be taken again.
func (s OfferStatus) Terminal() bool {
	return s == OfferCompleted || s == OfferCancelled
}

// Offer is a maker's standing quote: quantity of a token for fiat at a fixed
// price, with eligibility thresholds for takers. Remaining quantity is only
// mutated through TryReserve/Restore; status "open" requires remaining > 0
// and the offer not to be expired.
type Offer struct {
	ID           string          `json:"id"`
	MakerID      string          `json:"maker_id"`
	MakerWallet  string          `json:"maker_wallet"`
	Token        string          `json:"token"`
	FiatCurrency string          `json:"fiat_currency"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`

	TotalAmount     decimal.Decimal `json:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`

	PaymentMethodID  int              `json:"payment_method_id"`
	MinOrderAmount   *decimal.Decimal `json:"min_order_amount,omitempty"`
	MaxOrderAmount   *decimal.Decimal `json:"max_order_amount,omitempty"`
	TimeLimitMinutes int              `json:"time_limit_minutes"`

	// Taker eligibility thresholds; zero means no requirement.
	MinCompletedTrades int     `json:"min_completed_trades"`
	MinReputation      float64 `json:"min_reputation"`

	Status    OfferStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Reservable reports whether the offer can take a new reservation at all.
func (o *Offer) Reservable(now time.Time) bool {
	return o.Status == OfferOpen && now.Before(o.ExpiresAt) && o.RemainingAmount.IsPositive()
}

// CheckOrderBounds validates a requested slice against the offer's
// min/max order limits.
func (o *Offer) CheckOrderBounds(amount decimal.Decimal) error {
	if o.MinOrderAmount != nil && amount.LessThan(*o.MinOrderAmount) {
		return ErrBelowMinOrder
	}
	if o.MaxOrderAmount != nil && amount.GreaterThan(*o.MaxOrderAmount) {
		return ErrAboveMaxOrder
	}
	return nil
}

// CreateOfferRequest is the maker's input for posting a new offer.
type CreateOfferRequest struct {
	MakerWallet        string           `json:"maker_wallet"`
	Token              string           `json:"token"`
	FiatCurrency       string           `json:"fiat_currency"`
	PricePerUnit       decimal.Decimal  `json:"price_per_unit"`
	TotalAmount        decimal.Decimal  `json:"total_amount"`
	PaymentMethodID    int              `json:"payment_method_id"`
	MinOrderAmount     *decimal.Decimal `json:"min_order_amount,omitempty"`
	MaxOrderAmount     *decimal.Decimal `json:"max_order_amount,omitempty"`
	TimeLimitMinutes   int              `json:"time_limit_minutes,omitempty"`
	MinCompletedTrades int              `json:"min_completed_trades,omitempty"`
	MinReputation      float64          `json:"min_reputation,omitempty"`
	ExpiresAt          *time.Time       `json:"expires_at,omitempty"`
}

// OfferSortKey selects the listing sort column.
type OfferSortKey string

const (
	OfferSortByPrice     OfferSortKey = "price"
	OfferSortByCreatedAt OfferSortKey = "created_at"
)

// OfferFilter narrows and orders an offer listing. The result is a
// snapshot, not a live view.
type OfferFilter struct {
	Token             string
	FiatCurrency      string
	PaymentMethodIDs  []int
	MinAmount         *decimal.Decimal
	MaxAmount         *decimal.Decimal
	MakerTrustLevels  []string
	VerifiedOnly      bool
	MinCompletionRate *float64
	SortBy            OfferSortKey
	SortDesc          bool
	Limit             int
	Offset            int
}

// Token precision registry. Amounts are fixed-point decimals truncated to the
// token's native precision at the edge; no float accumulation afterwards.
var tokenPrecision = map[string]int32{
	"BTC":  8,
	"ETH":  8,
	"HEZ":  8,
	"USDT": 6,
	"USDC": 6,
	"BNB":  8,
	"SOL":  8,
}

// TokenPrecision returns the native decimal precision for a supported token.
func TokenPrecision(token string) (int32, error) {
	prec, ok := tokenPrecision[token]
	if !ok {
		return 0, fmt.Errorf("unsupported token %q", token)
	}
	return prec, nil
}
