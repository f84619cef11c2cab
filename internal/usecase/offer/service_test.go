// internal/usecase/offer/service_test.go
package offer

import (
	"context"
	"sync"
	"testing"
	"time"

	"p2p-escrow-service/internal/domain"
	"p2p-escrow-service/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService() (*Service, *memory.OfferStore) {
	store := memory.NewOfferStore(nil)
	return NewService(store, zap.NewNop()), store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func validRequest() *domain.CreateOfferRequest {
	return &domain.CreateOfferRequest{
		MakerWallet:     "0xmaker",
		Token:           "HEZ",
		FiatCurrency:    "USD",
		PricePerUnit:    dec("2"),
		TotalAmount:     dec("100"),
		PaymentMethodID: 3,
	}
}

func TestCreateOffer(t *testing.T) {
	ctx := context.Background()
	svc, store := newService()

	o, err := svc.Create(ctx, "usr_maker", validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "usr_maker", o.MakerID)
	assert.Equal(t, domain.OfferOpen, o.Status)
	assert.True(t, o.RemainingAmount.Equal(o.TotalAmount))
	assert.Equal(t, defaultTimeLimitMinutes, o.TimeLimitMinutes)
	assert.WithinDuration(t, time.Now().Add(defaultOfferTTL), o.ExpiresAt, time.Minute)

	stored, err := store.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)
}

func TestCreateOfferTruncatesTotal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	req := validRequest()
	req.Token = "USDT" // 6 decimals
	req.TotalAmount = dec("100.123456789")

	o, err := svc.Create(ctx, "usr_maker", req)
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.Equal(dec("100.123456")))
}

func TestCreateOfferValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	mutate := []func(*domain.CreateOfferRequest){
		func(r *domain.CreateOfferRequest) { r.Token = "" },
		func(r *domain.CreateOfferRequest) { r.MakerWallet = "" },
		func(r *domain.CreateOfferRequest) { r.PricePerUnit = dec("0") },
		func(r *domain.CreateOfferRequest) { r.TotalAmount = dec("-1") },
		func(r *domain.CreateOfferRequest) { r.TimeLimitMinutes = 3 },
		func(r *domain.CreateOfferRequest) { r.TimeLimitMinutes = 100000 },
		func(r *domain.CreateOfferRequest) { r.MinCompletedTrades = -1 },
		func(r *domain.CreateOfferRequest) {
			min, max := dec("50"), dec("20")
			r.MinOrderAmount, r.MaxOrderAmount = &min, &max
		},
		func(r *domain.CreateOfferRequest) {
			min := dec("200")
			r.MinOrderAmount = &min
		},
		func(r *domain.CreateOfferRequest) {
			past := time.Now().Add(-time.Hour)
			r.ExpiresAt = &past
		},
	}

	for i, fn := range mutate {
		req := validRequest()
		fn(req)
		_, err := svc.Create(ctx, "usr_maker", req)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, "case %d", i)
	}

	req := validRequest()
	req.Token = "DOGE"
	_, err := svc.Create(ctx, "usr_maker", req)
	assert.Error(t, err)
}

func TestListDefaults(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "usr_maker", validRequest())
		require.NoError(t, err)
	}

	out, err := svc.List(ctx, &domain.OfferFilter{})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestSetStatusPauseResume(t *testing.T) {
	ctx := context.Background()
	svc, store := newService()

	o, err := svc.Create(ctx, "usr_maker", validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferPaused))
	got, _ := store.GetByID(ctx, o.ID)
	assert.Equal(t, domain.OfferPaused, got.Status)

	// Pausing twice is rejected, resuming works.
	assert.ErrorIs(t, svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferPaused), domain.ErrOfferNotOpen)
	require.NoError(t, svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferOpen))
}

func TestSetStatusCancelTerminal(t *testing.T) {
	ctx := context.Background()
	svc, store := newService()

	o, err := svc.Create(ctx, "usr_maker", validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferCancelled))
	got, _ := store.GetByID(ctx, o.ID)
	assert.Equal(t, domain.OfferCancelled, got.Status)

	// No way back from cancelled.
	assert.ErrorIs(t, svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferCancelled), domain.ErrOfferNotOpen)
	assert.Error(t, svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferOpen))
}

func TestSetStatusCancelResumeRace(t *testing.T) {
	ctx := context.Background()
	svc, store := newService()

	// A cancel racing a resume must never end with the offer open again:
	// whichever write lands second carries a stale expectation and loses.
	for i := 0; i < 2000; i++ {
		o, err := svc.Create(ctx, "usr_maker", validRequest())
		require.NoError(t, err)
		require.NoError(t, svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferPaused))

		var wg sync.WaitGroup
		var cancelErr, resumeErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			cancelErr = svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferCancelled)
		}()
		go func() {
			defer wg.Done()
			resumeErr = svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferOpen)
		}()
		wg.Wait()

		got, err := store.GetByID(ctx, o.ID)
		require.NoError(t, err)
		if cancelErr == nil {
			require.Equal(t, domain.OfferCancelled, got.Status,
				"iteration %d: cancel succeeded (resumeErr=%v) but offer ended %q", i, resumeErr, got.Status)
		} else {
			require.ErrorIs(t, cancelErr, domain.ErrStaleState, "iteration %d", i)
			require.Equal(t, domain.OfferOpen, got.Status, "iteration %d", i)
		}
	}
}

func TestSetStatusOwnerOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	o, err := svc.Create(ctx, "usr_maker", validRequest())
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SetStatus(ctx, o.ID, "usr_other", domain.OfferPaused), domain.ErrNotOfferOwner)
}

func TestSetStatusNotMakerSettable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	o, err := svc.Create(ctx, "usr_maker", validRequest())
	require.NoError(t, err)

	assert.Error(t, svc.SetStatus(ctx, o.ID, "usr_maker", domain.OfferLocked))
}
