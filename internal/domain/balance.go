// internal/domain/balance.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the per-user, per-token ledger row. Invariant:
// available >= 0 and locked >= 0, with available+locked tracking
// deposits minus withdrawals plus net trade settlements. Only the
// ledger store primitives may move value.
type Balance struct {
	UserID         string          `json:"user_id"`
	Token          string          `json:"token"`
	Available      decimal.Decimal `json:"available"`
	Locked         decimal.Decimal `json:"locked"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Ledger journal entry types.
const (
	EntryDeposit       = "deposit"
	EntryWithdrawal    = "withdrawal"
	EntryEscrowLock    = "escrow_lock"
	EntryEscrowUnlock  = "escrow_unlock"
	EntryEscrowOut     = "escrow_release_out"
	EntryEscrowIn      = "escrow_release_in"
)

// LedgerEntry is an append-only journal row written in the same transaction
// as the balance mutation it records.
type LedgerEntry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Token     string          `json:"token"`
	EntryType string          `json:"entry_type"`
	Amount    decimal.Decimal `json:"amount"`
	RefID     *string         `json:"ref_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
