// internal/repository/ledger_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"p2p-escrow-service/internal/domain"
	"p2p-escrow-service/internal/pkg/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerRepository is the postgres ledger store. Every mutating method runs
// one short transaction: lock the balance row(s) FOR UPDATE, apply the
// movement, append a journal entry, commit. Row locks serialize mutations to
// a single (user, token) balance while leaving other balances unblocked.
type LedgerRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewLedgerRepository(pool *pgxpool.Pool, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{pool: pool, logger: logger}
}

const balanceColumns = `user_id, token, available, locked, total_deposited, total_withdrawn, updated_at`

// Lock moves amount from available to locked.
func (r *LedgerRepository) Lock(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error {
	return r.withBalance(ctx, userID, token, amount, true, func(tx pgx.Tx, b *domain.Balance) error {
		if b.Available.LessThan(amount) {
			return &domain.InsufficientBalanceError{
				UserID: userID, Token: token, Required: amount, Available: b.Available,
			}
		}
		b.Available = b.Available.Sub(amount)
		b.Locked = b.Locked.Add(amount)
		return r.applyBalance(ctx, tx, b, domain.EntryEscrowLock, amount, refID)
	})
}

// Unlock reverses a lock for an amount previously locked under refID.
func (r *LedgerRepository) Unlock(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error {
	return r.withBalance(ctx, userID, token, amount, false, func(tx pgx.Tx, b *domain.Balance) error {
		if b.Locked.LessThan(amount) {
			return fmt.Errorf("unlock %s %s for user %s: %w", amount, token, userID, domain.ErrLockMismatch)
		}
		b.Locked = b.Locked.Sub(amount)
		b.Available = b.Available.Add(amount)
		return r.applyBalance(ctx, tx, b, domain.EntryEscrowUnlock, amount, refID)
	})
}

// Credit is the deposit entry point of the funding collaborator.
func (r *LedgerRepository) Credit(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error {
	return r.withBalance(ctx, userID, token, amount, true, func(tx pgx.Tx, b *domain.Balance) error {
		b.Available = b.Available.Add(amount)
		b.TotalDeposited = b.TotalDeposited.Add(amount)
		return r.applyBalance(ctx, tx, b, domain.EntryDeposit, amount, refID)
	})
}

// Debit is the withdrawal entry point of the funding collaborator.
func (r *LedgerRepository) Debit(ctx context.Context, userID, token string, amount decimal.Decimal, refID string) error {
	return r.withBalance(ctx, userID, token, amount, false, func(tx pgx.Tx, b *domain.Balance) error {
		if b.Available.LessThan(amount) {
			return &domain.InsufficientBalanceError{
				UserID: userID, Token: token, Required: amount, Available: b.Available,
			}
		}
		b.Available = b.Available.Sub(amount)
		b.TotalWithdrawn = b.TotalWithdrawn.Add(amount)
		return r.applyBalance(ctx, tx, b, domain.EntryWithdrawal, amount, refID)
	})
}

// ReleaseTransfer moves locked escrow from one user to another's available
// balance as a single indivisible unit. Rows are locked in user-id order so
// two crossing transfers cannot deadlock.
func (r *LedgerRepository) ReleaseTransfer(ctx context.Context, fromUserID, toUserID, token string, amount decimal.Decimal, refID string) error {
	if fromUserID == "" || toUserID == "" || !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	first, second := fromUserID, toUserID
	if second < first {
		first, second = second, first
	}
	locked := map[string]*domain.Balance{}
	for _, uid := range []string{first, second} {
		// Creating the recipient row takes its lock, so it has to happen
		// at this row's turn in the ordering, not before.
		if uid == toUserID {
			if err := r.ensureRow(ctx, tx, uid, token); err != nil {
				return err
			}
		}
		b, err := r.lockRow(ctx, tx, uid, token)
		if err != nil {
			return err
		}
		locked[uid] = b
	}

	from, to := locked[fromUserID], locked[toUserID]
	if from.Locked.LessThan(amount) {
		return fmt.Errorf("release %s %s from user %s (locked %s): %w",
			amount, token, fromUserID, from.Locked, domain.ErrLockMismatch)
	}
	from.Locked = from.Locked.Sub(amount)
	to.Available = to.Available.Add(amount)

	if err := r.applyBalance(ctx, tx, from, domain.EntryEscrowOut, amount, refID); err != nil {
		return err
	}
	if err := r.applyBalance(ctx, tx, to, domain.EntryEscrowIn, amount, refID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}

	r.logger.Info("Escrow released",
		zap.String("from_user_id", fromUserID),
		zap.String("to_user_id", toUserID),
		zap.String("token", token),
		zap.String("amount", amount.String()),
		zap.String("ref_id", refID))
	return nil
}

// GetBalance retrieves one balance row.
func (r *LedgerRepository) GetBalance(ctx context.Context, userID, token string) (*domain.Balance, error) {
	query := fmt.Sprintf(`SELECT %s FROM balances WHERE user_id = $1 AND token = $2`, balanceColumns)

	b := &domain.Balance{}
	err := r.pool.QueryRow(ctx, query, userID, token).Scan(
		&b.UserID, &b.Token, &b.Available, &b.Locked,
		&b.TotalDeposited, &b.TotalWithdrawn, &b.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return b, nil
}

// ListBalances retrieves all balances for a user.
func (r *LedgerRepository) ListBalances(ctx context.Context, userID string) ([]*domain.Balance, error) {
	query := fmt.Sprintf(`SELECT %s FROM balances WHERE user_id = $1 ORDER BY token`, balanceColumns)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var balances []*domain.Balance
	for rows.Next() {
		b := &domain.Balance{}
		if err := rows.Scan(&b.UserID, &b.Token, &b.Available, &b.Locked,
			&b.TotalDeposited, &b.TotalWithdrawn, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// withBalance runs fn against the row-locked balance inside one transaction.
// createIfMissing is set for entry points that may see a user's first funds.
func (r *LedgerRepository) withBalance(ctx context.Context, userID, token string, amount decimal.Decimal, createIfMissing bool, fn func(pgx.Tx, *domain.Balance) error) error {
	if userID == "" || token == "" || !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if createIfMissing {
		if err := r.ensureRow(ctx, tx, userID, token); err != nil {
			return err
		}
	}
	b, err := r.lockRow(ctx, tx, userID, token)
	if err != nil {
		return err
	}
	if err := fn(tx, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ensureRow(ctx context.Context, tx pgx.Tx, userID, token string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (user_id, token, available, locked, total_deposited, total_withdrawn, updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, NOW())
		ON CONFLICT (user_id, token) DO NOTHING`, userID, token)
	if err != nil {
		return fmt.Errorf("failed to ensure balance row: %w", err)
	}
	return nil
}

func (r *LedgerRepository) lockRow(ctx context.Context, tx pgx.Tx, userID, token string) (*domain.Balance, error) {
	query := fmt.Sprintf(`SELECT %s FROM balances WHERE user_id = $1 AND token = $2 FOR UPDATE`, balanceColumns)

	b := &domain.Balance{}
	err := tx.QueryRow(ctx, query, userID, token).Scan(
		&b.UserID, &b.Token, &b.Available, &b.Locked,
		&b.TotalDeposited, &b.TotalWithdrawn, &b.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance row: %w", err)
	}
	return b, nil
}

// applyBalance writes the mutated balance and its journal entry.
func (r *LedgerRepository) applyBalance(ctx context.Context, tx pgx.Tx, b *domain.Balance, entryType string, amount decimal.Decimal, refID string) error {
	b.UpdatedAt = time.Now()
	_, err := tx.Exec(ctx, `
		UPDATE balances
		SET available = $1, locked = $2, total_deposited = $3, total_withdrawn = $4, updated_at = $5
		WHERE user_id = $6 AND token = $7`,
		b.Available, b.Locked, b.TotalDeposited, b.TotalWithdrawn, b.UpdatedAt,
		b.UserID, b.Token,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	var ref *string
	if refID != "" {
		ref = &refID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, token, entry_type, amount, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		utils.GenerateID("led"), b.UserID, b.Token, entryType, amount, ref,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}
