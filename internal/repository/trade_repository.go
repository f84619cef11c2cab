// internal/repository/trade_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"p2p-escrow-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TradeRepository persists trades. Transitions are optimistic: the UPDATE
// carries the expected prior status in its predicate, so a stale caller
// changes nothing and gets domain.ErrStaleState instead of overwriting.
type TradeRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewTradeRepository(pool *pgxpool.Pool, logger *zap.Logger) *TradeRepository {
	return &TradeRepository{pool: pool, logger: logger}
}

const tradeColumns = `
	id, offer_id, maker_id, taker_id, taker_wallet, token, fiat_currency,
	crypto_amount, fiat_amount, price_per_unit, escrow_locked_amount,
	taker_marked_paid_at, payment_proof_ref, maker_confirmed_at, status,
	payment_deadline, confirmation_deadline, created_at, completed_at`

// Create inserts a new trade row.
func (r *TradeRepository) Create(ctx context.Context, t *domain.Trade) error {
	query := `
		INSERT INTO trades (
			id, offer_id, maker_id, taker_id, taker_wallet, token, fiat_currency,
			crypto_amount, fiat_amount, price_per_unit, escrow_locked_amount,
			taker_marked_paid_at, payment_proof_ref, maker_confirmed_at, status,
			payment_deadline, confirmation_deadline, created_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`
	_, err := r.pool.Exec(ctx, query,
		t.ID, t.OfferID, t.MakerID, t.TakerID, t.TakerWallet, t.Token, t.FiatCurrency,
		t.CryptoAmount, t.FiatAmount, t.PricePerUnit, t.EscrowLockedAmount,
		t.TakerMarkedPaidAt, t.PaymentProofRef, t.MakerConfirmedAt, t.Status,
		t.PaymentDeadline, t.ConfirmationDeadline, t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create trade",
			zap.String("offer_id", t.OfferID),
			zap.String("taker_id", t.TakerID),
			zap.Error(err))
		return fmt.Errorf("failed to create trade: %w", err)
	}

	r.logger.Info("Trade created",
		zap.String("trade_id", t.ID),
		zap.String("offer_id", t.OfferID),
		zap.String("maker_id", t.MakerID),
		zap.String("taker_id", t.TakerID))
	return nil
}

// GetByID retrieves a trade by id.
func (r *TradeRepository) GetByID(ctx context.Context, id string) (*domain.Trade, error) {
	query := fmt.Sprintf(`SELECT %s FROM trades WHERE id = $1`, tradeColumns)

	t := &domain.Trade{}
	err := r.scanTrade(r.pool.QueryRow(ctx, query, id), t)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return t, nil
}

// List retrieves trades for the polling read model.
func (r *TradeRepository) List(ctx context.Context, filter *domain.TradeFilter) ([]*domain.Trade, error) {
	whereConditions := []string{}
	args := []interface{}{}
	argPos := 1

	switch filter.Role {
	case domain.RoleMaker:
		whereConditions = append(whereConditions, fmt.Sprintf("maker_id = $%d", argPos))
		args = append(args, filter.UserID)
		argPos++
	case domain.RoleTaker:
		whereConditions = append(whereConditions, fmt.Sprintf("taker_id = $%d", argPos))
		args = append(args, filter.UserID)
		argPos++
	default:
		if filter.UserID != "" {
			whereConditions = append(whereConditions, fmt.Sprintf("(maker_id = $%d OR taker_id = $%d)", argPos, argPos))
			args = append(args, filter.UserID)
			argPos++
		}
	}

	if filter.Status != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM trades
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, tradeColumns, whereClause, argPos, argPos+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	trades := []*domain.Trade{}
	for rows.Next() {
		t := &domain.Trade{}
		if err := r.scanTrade(rows, t); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Transition applies upd iff the trade still holds the expected status.
func (r *TradeRepository) Transition(ctx context.Context, tradeID string, expected domain.TradeStatus, upd domain.TradeUpdate) (*domain.Trade, error) {
	updates := []string{"status = $1", "updated_at = NOW()"}
	args := []interface{}{upd.Status}
	argPos := 2

	if upd.EscrowLockedAmount != nil {
		updates = append(updates, fmt.Sprintf("escrow_locked_amount = $%d", argPos))
		args = append(args, *upd.EscrowLockedAmount)
		argPos++
	}
	if upd.TakerMarkedPaidAt != nil {
		updates = append(updates, fmt.Sprintf("taker_marked_paid_at = $%d", argPos))
		args = append(args, *upd.TakerMarkedPaidAt)
		argPos++
	}
	if upd.PaymentProofRef != nil {
		updates = append(updates, fmt.Sprintf("payment_proof_ref = $%d", argPos))
		args = append(args, *upd.PaymentProofRef)
		argPos++
	}
	if upd.ConfirmationDeadline != nil {
		updates = append(updates, fmt.Sprintf("confirmation_deadline = $%d", argPos))
		args = append(args, *upd.ConfirmationDeadline)
		argPos++
	}
	if upd.MakerConfirmedAt != nil {
		updates = append(updates, fmt.Sprintf("maker_confirmed_at = $%d", argPos))
		args = append(args, *upd.MakerConfirmedAt)
		argPos++
	}
	if upd.CompletedAt != nil {
		updates = append(updates, fmt.Sprintf("completed_at = $%d", argPos))
		args = append(args, *upd.CompletedAt)
		argPos++
	}

	args = append(args, tradeID, expected)
	query := fmt.Sprintf(`
		UPDATE trades SET %s
		WHERE id = $%d AND status = $%d
		RETURNING %s
	`, strings.Join(updates, ", "), argPos, argPos+1, tradeColumns)

	t := &domain.Trade{}
	err := r.scanTrade(r.pool.QueryRow(ctx, query, args...), t)
	if err == pgx.ErrNoRows {
		// Distinguish a missing trade from one that moved on.
		if _, getErr := r.GetByID(ctx, tradeID); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition trade: %w", err)
	}

	r.logger.Info("Trade transitioned",
		zap.String("trade_id", tradeID),
		zap.String("from", string(expected)),
		zap.String("to", string(upd.Status)))
	return t, nil
}

// ListDeadlineExpired returns trades whose active deadline has passed.
func (r *TradeRepository) ListDeadlineExpired(ctx context.Context, now time.Time) ([]*domain.Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE (status = 'pending' AND payment_deadline < $1)
		   OR (status = 'payment_sent' AND confirmation_deadline IS NOT NULL AND confirmation_deadline < $1)
		ORDER BY created_at
	`, tradeColumns)

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t := &domain.Trade{}
		if err := r.scanTrade(rows, t); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (r *TradeRepository) scanTrade(row pgx.Row, t *domain.Trade) error {
	return row.Scan(
		&t.ID, &t.OfferID, &t.MakerID, &t.TakerID, &t.TakerWallet, &t.Token, &t.FiatCurrency,
		&t.CryptoAmount, &t.FiatAmount, &t.PricePerUnit, &t.EscrowLockedAmount,
		&t.TakerMarkedPaidAt, &t.PaymentProofRef, &t.MakerConfirmedAt, &t.Status,
		&t.PaymentDeadline, &t.ConfirmationDeadline, &t.CreatedAt, &t.CompletedAt,
	)
}
