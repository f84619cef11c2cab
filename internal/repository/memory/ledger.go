// internal/repository/memory/ledger.go
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"p2p-escrow-service/internal/domain"
	"p2p-escrow-service/internal/pkg/utils"

	"github.com/shopspring/decimal"
)

// LedgerStore is a mutex-guarded in-memory ledger used by tests and the
// standalone dev mode. Mutations to one (user, token) balance serialize on
// the store lock; each call applies atomically, no partial state is visible.
type LedgerStore struct {
	mu       sync.RWMutex
	balances map[string]*domain.Balance // userID|token
	entries  []*domain.LedgerEntry
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		balances: make(map[string]*domain.Balance),
	}
}

func balanceKey(userID, token string) string {
	return userID + "|" + token
}

// Lock moves amount from available to locked.
func (s *LedgerStore) Lock(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error {
	if userID == "" || token == "" || !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.ensure(userID, token)
	if b.Available.LessThan(amount) {
		return &domain.InsufficientBalanceError{
			UserID: userID, Token: token, Required: amount, Available: b.Available,
		}
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	s.journal(b, domain.EntryEscrowLock, amount, refID)
	return nil
}

// Unlock reverses a previous lock.
func (s *LedgerStore) Unlock(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[balanceKey(userID, token)]
	if !ok || b.Locked.LessThan(amount) {
		return fmt.Errorf("unlock %s %s for user %s: %w", amount, token, userID, domain.ErrLockMismatch)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	s.journal(b, domain.EntryEscrowUnlock, amount, refID)
	return nil
}

// ReleaseTransfer moves locked escrow to the counterparty's available
// balance as one atomic step.
func (s *LedgerStore) ReleaseTransfer(ctx context.Context, fromUserID, toUserID, token string, amount decimal.Decimal, refID string) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.balances[balanceKey(fromUserID, token)]
	if !ok || from.Locked.LessThan(amount) {
		locked := decimal.Zero
		if ok {
			locked = from.Locked
		}
		return fmt.Errorf("release %s %s from user %s (locked %s): %w",
			amount, token, fromUserID, locked, domain.ErrLockMismatch)
	}
	to := s.ensure(toUserID, token)

	from.Locked = from.Locked.Sub(amount)
	to.Available = to.Available.Add(amount)
	s.journal(from, domain.EntryEscrowOut, amount, refID)
	s.journal(to, domain.EntryEscrowIn, amount, refID)
	return nil
}

// Credit adds deposited funds to the available balance.
func (s *LedgerStore) Credit(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error {
	if userID == "" || token == "" || !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.ensure(userID, token)
	b.Available = b.Available.Add(amount)
	b.TotalDeposited = b.TotalDeposited.Add(amount)
	s.journal(b, domain.EntryDeposit, amount, refID)
	return nil
}

// Debit withdraws available funds.
func (s *LedgerStore) Debit(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.ensure(userID, token)
	if b.Available.LessThan(amount) {
		return &domain.InsufficientBalanceError{
			UserID: userID, Token: token, Required: amount, Available: b.Available,
		}
	}
	b.Available = b.Available.Sub(amount)
	b.TotalWithdrawn = b.TotalWithdrawn.Add(amount)
	s.journal(b, domain.EntryWithdrawal, amount, refID)
	return nil
}

// GetBalance returns a copy of one balance row.
func (s *LedgerStore) GetBalance(ctx context.Context, userID, token string) (*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[balanceKey(userID, token)]
	if !ok {
		return nil, domain.ErrBalanceNotFound
	}
	copied := *b
	return &copied, nil
}

// ListBalances returns copies of all balance rows for a user.
func (s *LedgerStore) ListBalances(ctx context.Context, userID string) ([]*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Balance
	for _, b := range s.balances {
		if b.UserID == userID {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Entries returns the journal; test helper.
func (s *LedgerStore) Entries() []*domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.LedgerEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *LedgerStore) ensure(userID, token string) *domain.Balance {
	key := balanceKey(userID, token)
	b, ok := s.balances[key]
	if !ok {
		b = &domain.Balance{
			UserID: userID, Token: token,
			Available: decimal.Zero, Locked: decimal.Zero,
			TotalDeposited: decimal.Zero, TotalWithdrawn: decimal.Zero,
		}
		s.balances[key] = b
	}
	return b
}

func (s *LedgerStore) journal(b *domain.Balance, entryType string, amount decimal.Decimal, refID string) {
	b.UpdatedAt = time.Now()
	var ref *string
	if refID != "" {
		ref = &refID
	}
	s.entries = append(s.entries, &domain.LedgerEntry{
		ID:        utils.GenerateID("led"),
		UserID:    b.UserID,
		Token:     b.Token,
		EntryType: entryType,
		Amount:    amount,
		RefID:     ref,
		CreatedAt: b.UpdatedAt,
	})
}
