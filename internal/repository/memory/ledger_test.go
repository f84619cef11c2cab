// internal/repository/memory/ledger_test.go
package memory

import (
	"context"
	"testing"

	"p2p-escrow-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedgerLockUnlock(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	require.NoError(t, s.Credit(ctx, "usr_a", "HEZ", d("100"), "dep_1"))

	require.NoError(t, s.Lock(ctx, "usr_a", "HEZ", d("30"), "trd_1"))

	b, err := s.GetBalance(ctx, "usr_a", "HEZ")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(d("70")))
	assert.True(t, b.Locked.Equal(d("30")))

	require.NoError(t, s.Unlock(ctx, "usr_a", "HEZ", d("30"), "trd_1"))

	b, err = s.GetBalance(ctx, "usr_a", "HEZ")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(d("100")))
	assert.True(t, b.Locked.IsZero())
}

func TestLedgerLockInsufficient(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	require.NoError(t, s.Credit(ctx, "usr_a", "HEZ", d("10"), "dep_1"))

	err := s.Lock(ctx, "usr_a", "HEZ", d("11"), "trd_1")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	var ibe *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.True(t, ibe.Available.Equal(d("10")))
	assert.True(t, ibe.Required.Equal(d("11")))

	// No row at all behaves as a zero balance.
	err = s.Lock(ctx, "usr_nobody", "HEZ", d("1"), "trd_2")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestLedgerUnlockMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	require.NoError(t, s.Credit(ctx, "usr_a", "HEZ", d("100"), "dep_1"))
	require.NoError(t, s.Lock(ctx, "usr_a", "HEZ", d("30"), "trd_1"))

	assert.ErrorIs(t, s.Unlock(ctx, "usr_a", "HEZ", d("31"), "trd_1"), domain.ErrLockMismatch)
	assert.ErrorIs(t, s.Unlock(ctx, "usr_b", "HEZ", d("1"), "trd_1"), domain.ErrLockMismatch)
}

func TestLedgerReleaseTransfer(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	require.NoError(t, s.Credit(ctx, "usr_maker", "HEZ", d("100"), "dep_1"))
	require.NoError(t, s.Lock(ctx, "usr_maker", "HEZ", d("30"), "trd_1"))

	require.NoError(t, s.ReleaseTransfer(ctx, "usr_maker", "usr_taker", "HEZ", d("30"), "trd_1"))

	maker, err := s.GetBalance(ctx, "usr_maker", "HEZ")
	require.NoError(t, err)
	assert.True(t, maker.Available.Equal(d("70")))
	assert.True(t, maker.Locked.IsZero())

	taker, err := s.GetBalance(ctx, "usr_taker", "HEZ")
	require.NoError(t, err)
	assert.True(t, taker.Available.Equal(d("30")))
	assert.True(t, taker.Locked.IsZero())
}

func TestLedgerReleaseTransferLockMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	require.NoError(t, s.Credit(ctx, "usr_maker", "HEZ", d("100"), "dep_1"))
	require.NoError(t, s.Lock(ctx, "usr_maker", "HEZ", d("5"), "trd_1"))

	err := s.ReleaseTransfer(ctx, "usr_maker", "usr_taker", "HEZ", d("30"), "trd_1")
	require.ErrorIs(t, err, domain.ErrLockMismatch)

	// Nothing changed on either side.
	maker, _ := s.GetBalance(ctx, "usr_maker", "HEZ")
	assert.True(t, maker.Locked.Equal(d("5")))
	_, err = s.GetBalance(ctx, "usr_taker", "HEZ")
	assert.ErrorIs(t, err, domain.ErrBalanceNotFound)
}

func TestLedgerDebit(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	require.NoError(t, s.Credit(ctx, "usr_a", "USDT", d("50"), "dep_1"))
	require.NoError(t, s.Debit(ctx, "usr_a", "USDT", d("20"), "wd_1"))

	b, err := s.GetBalance(ctx, "usr_a", "USDT")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(d("30")))
	assert.True(t, b.TotalDeposited.Equal(d("50")))
	assert.True(t, b.TotalWithdrawn.Equal(d("20")))

	// Locked funds are not withdrawable.
	require.NoError(t, s.Lock(ctx, "usr_a", "USDT", d("30"), "trd_1"))
	assert.ErrorIs(t, s.Debit(ctx, "usr_a", "USDT", d("1"), "wd_2"), domain.ErrInsufficientBalance)
}

func TestLedgerRejectsBadAmounts(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	assert.ErrorIs(t, s.Credit(ctx, "usr_a", "HEZ", d("0"), ""), domain.ErrInvalidAmount)
	assert.ErrorIs(t, s.Credit(ctx, "usr_a", "HEZ", d("-5"), ""), domain.ErrInvalidAmount)
	assert.ErrorIs(t, s.Lock(ctx, "usr_a", "HEZ", d("-1"), ""), domain.ErrInvalidAmount)
	assert.ErrorIs(t, s.Debit(ctx, "usr_a", "HEZ", d("0"), ""), domain.ErrInvalidAmount)
	assert.ErrorIs(t, s.Lock(ctx, "", "HEZ", d("1"), ""), domain.ErrInvalidAmount)
}

func TestLedgerJournal(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	require.NoError(t, s.Credit(ctx, "usr_maker", "HEZ", d("100"), "dep_1"))
	require.NoError(t, s.Lock(ctx, "usr_maker", "HEZ", d("30"), "trd_1"))
	require.NoError(t, s.ReleaseTransfer(ctx, "usr_maker", "usr_taker", "HEZ", d("30"), "trd_1"))

	entries := s.Entries()
	require.Len(t, entries, 4)

	types := make([]string, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.EntryType)
	}
	assert.Equal(t, []string{
		domain.EntryDeposit,
		domain.EntryEscrowLock,
		domain.EntryEscrowOut,
		domain.EntryEscrowIn,
	}, types)

	release := entries[2]
	require.NotNil(t, release.RefID)
	assert.Equal(t, "trd_1", *release.RefID)
}
