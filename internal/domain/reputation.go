// internal/domain/reputation.go
package domain

import "time"

// Reputation is the eventually-consistent read model published by the
// external scoring process. The core only reads it.
type Reputation struct {
	UserID           string    `json:"user_id"`
	TotalTrades      int       `json:"total_trades"`
	CompletedTrades  int       `json:"completed_trades"`
	CancelledTrades  int       `json:"cancelled_trades"`
	DisputedTrades   int       `json:"disputed_trades"`
	Score            float64   `json:"score"`
	TrustLevel       string    `json:"trust_level"`
	VerifiedMerchant bool      `json:"verified_merchant"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CompletionRate returns the percentage of trades completed.
func (r *Reputation) CompletionRate() float64 {
	if r.TotalTrades == 0 {
		return 0
	}
	return (float64(r.CompletedTrades) / float64(r.TotalTrades)) * 100
}
