// internal/repository/offer_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"p2p-escrow-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OfferRepository is the postgres offer book. TryReserve and Restore take the
// offer's row lock so concurrent partial accepts serialize on the row and can
// never both consume capacity that exists only once.
type OfferRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewOfferRepository(pool *pgxpool.Pool, logger *zap.Logger) *OfferRepository {
	return &OfferRepository{pool: pool, logger: logger}
}

const offerColumns = `
	id, maker_id, maker_wallet, token, fiat_currency, price_per_unit,
	total_amount, remaining_amount, payment_method_id, min_order_amount,
	max_order_amount, time_limit_minutes, min_completed_trades,
	min_reputation, status, created_at, expires_at, updated_at`

// Create inserts a new offer.
func (r *OfferRepository) Create(ctx context.Context, o *domain.Offer) error {
	query := `
		INSERT INTO offers (
			id, maker_id, maker_wallet, token, fiat_currency, price_per_unit,
			total_amount, remaining_amount, payment_method_id, min_order_amount,
			max_order_amount, time_limit_minutes, min_completed_trades,
			min_reputation, status, created_at, expires_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`
	_, err := r.pool.Exec(ctx, query,
		o.ID, o.MakerID, o.MakerWallet, o.Token, o.FiatCurrency, o.PricePerUnit,
		o.TotalAmount, o.RemainingAmount, o.PaymentMethodID, o.MinOrderAmount,
		o.MaxOrderAmount, o.TimeLimitMinutes, o.MinCompletedTrades,
		o.MinReputation, o.Status, o.CreatedAt, o.ExpiresAt, o.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create offer",
			zap.String("maker_id", o.MakerID),
			zap.Error(err))
		return fmt.Errorf("failed to create offer: %w", err)
	}

	r.logger.Info("Offer created",
		zap.String("offer_id", o.ID),
		zap.String("maker_id", o.MakerID),
		zap.String("token", o.Token))
	return nil
}

// GetByID retrieves an offer by id.
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*domain.Offer, error) {
	query := fmt.Sprintf(`SELECT %s FROM offers WHERE id = $1`, offerColumns)

	o := &domain.Offer{}
	err := r.scanOffer(r.pool.QueryRow(ctx, query, id), o)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	return o, nil
}

// List retrieves a snapshot of offers matching the filter. Maker-tier,
// verified-only and completion-rate filters read the reputation read model.
func (r *OfferRepository) List(ctx context.Context, filter *domain.OfferFilter) ([]*domain.Offer, error) {
	whereConditions := []string{"o.status = 'open'", "o.expires_at > NOW()"}
	args := []interface{}{}
	argPos := 1

	if filter.Token != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("o.token = $%d", argPos))
		args = append(args, filter.Token)
		argPos++
	}

	if filter.FiatCurrency != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("o.fiat_currency = $%d", argPos))
		args = append(args, filter.FiatCurrency)
		argPos++
	}

	if len(filter.PaymentMethodIDs) > 0 {
		whereConditions = append(whereConditions, fmt.Sprintf("o.payment_method_id = ANY($%d)", argPos))
		args = append(args, filter.PaymentMethodIDs)
		argPos++
	}

	if filter.MinAmount != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("o.remaining_amount >= $%d", argPos))
		args = append(args, *filter.MinAmount)
		argPos++
	}

	if filter.MaxAmount != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("o.remaining_amount <= $%d", argPos))
		args = append(args, *filter.MaxAmount)
		argPos++
	}

	if len(filter.MakerTrustLevels) > 0 {
		whereConditions = append(whereConditions, fmt.Sprintf("rep.trust_level = ANY($%d)", argPos))
		args = append(args, filter.MakerTrustLevels)
		argPos++
	}

	if filter.VerifiedOnly {
		whereConditions = append(whereConditions, "rep.verified_merchant = true")
	}

	if filter.MinCompletionRate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf(
			"(rep.total_trades > 0 AND (rep.completed_trades::float / rep.total_trades) * 100 >= $%d)", argPos))
		args = append(args, *filter.MinCompletionRate)
		argPos++
	}

	orderBy := "o.created_at"
	if filter.SortBy == domain.OfferSortByPrice {
		orderBy = "o.price_per_unit"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM offers o
		LEFT JOIN reputation rep ON rep.user_id = o.maker_id
		WHERE %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, offerAliasedColumns, strings.Join(whereConditions, " AND "), orderBy, direction, argPos, argPos+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	offers := []*domain.Offer{}
	for rows.Next() {
		o := &domain.Offer{}
		if err := r.scanOffer(rows, o); err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// TryReserve atomically consumes a slice of the offer's remaining amount.
func (r *OfferRepository) TryReserve(ctx context.Context, offerID string, amount decimal.Decimal) (*domain.Offer, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := r.lockOffer(ctx, tx, offerID)
	if err != nil {
		return nil, err
	}

	if !o.Reservable(time.Now()) {
		return nil, domain.ErrOfferNotOpen
	}
	if err := o.CheckOrderBounds(amount); err != nil {
		return nil, err
	}
	if amount.GreaterThan(o.RemainingAmount) {
		return nil, domain.ErrAmountExceedsRemaining
	}

	o.RemainingAmount = o.RemainingAmount.Sub(amount)
	if o.RemainingAmount.IsZero() {
		o.Status = domain.OfferLocked
	}
	o.UpdatedAt = time.Now()

	_, err = tx.Exec(ctx,
		`UPDATE offers SET remaining_amount = $1, status = $2, updated_at = $3 WHERE id = $4`,
		o.RemainingAmount, o.Status, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve offer: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}

	r.logger.Info("Offer reserved",
		zap.String("offer_id", o.ID),
		zap.String("amount", amount.String()),
		zap.String("remaining", o.RemainingAmount.String()))
	return o, nil
}

// Restore returns a cancelled/refunded trade's quantity to the offer. A
// maker-cancelled offer keeps its terminal status; only the quantity moves.
func (r *OfferRepository) Restore(ctx context.Context, offerID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := r.lockOffer(ctx, tx, offerID)
	if err != nil {
		return err
	}

	restored := o.RemainingAmount.Add(amount)
	if restored.GreaterThan(o.TotalAmount) {
		return fmt.Errorf("restore %s to offer %s would exceed total %s: %w",
			amount, offerID, o.TotalAmount, domain.ErrInvalidAmount)
	}
	o.RemainingAmount = restored
	// An offer past its expiry stays completed; only reservations are undone.
	if (o.Status == domain.OfferLocked || o.Status == domain.OfferCompleted) && time.Now().Before(o.ExpiresAt) {
		o.Status = domain.OfferOpen
	}
	o.UpdatedAt = time.Now()

	_, err = tx.Exec(ctx,
		`UPDATE offers SET remaining_amount = $1, status = $2, updated_at = $3 WHERE id = $4`,
		o.RemainingAmount, o.Status, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to restore offer: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}

	r.logger.Info("Offer quantity restored",
		zap.String("offer_id", o.ID),
		zap.String("amount", amount.String()),
		zap.String("remaining", o.RemainingAmount.String()))
	return nil
}

// SetStatus applies a maker-initiated status change. The expected prior
// status rides in the predicate so a racing change wins cleanly: a resume
// racing a cancel cannot overwrite the terminal status.
func (r *OfferRepository) SetStatus(ctx context.Context, offerID string, expected, status domain.OfferStatus) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE offers SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		status, offerID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to set offer status: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish a missing offer from one that moved on.
		if _, getErr := r.GetByID(ctx, offerID); getErr != nil {
			return getErr
		}
		return domain.ErrStaleState
	}
	return nil
}

// ExpireOpen flips open/paused offers past their expiry to completed.
func (r *OfferRepository) ExpireOpen(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE offers SET status = 'completed', updated_at = NOW()
		WHERE status IN ('open', 'paused') AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire offers: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *OfferRepository) lockOffer(ctx context.Context, tx pgx.Tx, offerID string) (*domain.Offer, error) {
	query := fmt.Sprintf(`SELECT %s FROM offers WHERE id = $1 FOR UPDATE`, offerColumns)

	o := &domain.Offer{}
	err := r.scanOffer(tx.QueryRow(ctx, query, offerID), o)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock offer row: %w", err)
	}
	return o, nil
}

func (r *OfferRepository) scanOffer(row pgx.Row, o *domain.Offer) error {
	return row.Scan(
		&o.ID, &o.MakerID, &o.MakerWallet, &o.Token, &o.FiatCurrency, &o.PricePerUnit,
		&o.TotalAmount, &o.RemainingAmount, &o.PaymentMethodID, &o.MinOrderAmount,
		&o.MaxOrderAmount, &o.TimeLimitMinutes, &o.MinCompletedTrades,
		&o.MinReputation, &o.Status, &o.CreatedAt, &o.ExpiresAt, &o.UpdatedAt,
	)
}

var offerAliasedColumns = func() string {
	cols := strings.Split(offerColumns, ",")
	for i, c := range cols {
		cols[i] = "o." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}()
