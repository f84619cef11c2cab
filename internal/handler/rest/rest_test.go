// internal/handler/rest/rest_test.go
package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	rh "p2p-escrow-service/internal/handler/rest"
	"p2p-escrow-service/internal/repository/memory"
	"p2p-escrow-service/internal/router"
	"p2p-escrow-service/internal/usecase/escrow"
	"p2p-escrow-service/internal/usecase/offer"
	"p2p-escrow-service/internal/usecase/reputation"
	"p2p-escrow-service/internal/usecase/trade"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	reps := memory.NewReputationStore()
	offers := memory.NewOfferStore(reps)
	ledger := memory.NewLedgerStore()
	trades := memory.NewTradeStore()

	logger := zap.NewNop()
	gate := reputation.NewGate(reps, logger)
	offerSvc := offer.NewService(offers, logger)
	tradeSvc := trade.NewService(trades, offers, ledger, logger)
	coordinator := escrow.NewCoordinator(offers, ledger, trades, gate, logger)

	h := rh.NewHandler(offerSvc, tradeSvc, coordinator, ledger, reps, logger)

	// The limiter fails open against an unreachable redis.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { rdb.Close() })

	r := chi.NewRouter()
	router.SetupRoutes(r, h, rdb)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
}

func do(t *testing.T, srv *httptest.Server, method, path, userID string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-Wallet-Address", "0x"+userID)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/p2p/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIdentityRequired(t *testing.T) {
	srv := newTestServer(t)

	resp, env := do(t, srv, http.MethodPost, "/p2p/offers", "", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.Success)

	// The offer book itself is public.
	resp, env = do(t, srv, http.MethodGet, "/p2p/offers", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}

func TestTradeLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	// Fund the maker.
	resp, _ := do(t, srv, http.MethodPost, "/p2p/funding/credit", "", map[string]interface{}{
		"user_id": "usr_maker", "token": "HEZ", "amount": "100", "tx_ref": "0xdeadbeef",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Maker posts an offer: 100 HEZ at 2 USD.
	resp, env := do(t, srv, http.MethodPost, "/p2p/offers", "usr_maker", map[string]interface{}{
		"token": "HEZ", "fiat_currency": "USD",
		"price_per_unit": "2", "total_amount": "100",
		"payment_method_id": 3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "error: %s", env.Error)
	offerID := env.Data["offer"].(map[string]interface{})["id"].(string)

	// Taker accepts 30 of it.
	resp, env = do(t, srv, http.MethodPost, "/p2p/offers/"+offerID+"/accept", "usr_taker", map[string]interface{}{
		"amount": "30",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "error: %s", env.Error)
	tradeObj := env.Data["trade"].(map[string]interface{})
	tradeID := tradeObj["id"].(string)
	assert.Equal(t, "pending", tradeObj["status"])
	assert.Equal(t, "60", tradeObj["fiat_amount"])

	// Self-trade is rejected outright.
	resp, _ = do(t, srv, http.MethodPost, "/p2p/offers/"+offerID+"/accept", "usr_maker", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Taker claims payment; only the taker may.
	resp, _ = do(t, srv, http.MethodPost, "/p2p/trades/"+tradeID+"/payment-sent", "usr_maker", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env = do(t, srv, http.MethodPost, "/p2p/trades/"+tradeID+"/payment-sent", "usr_taker", map[string]interface{}{
		"payment_proof_ref": "bank-991",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "error: %s", env.Error)

	// Cancelling now is a lost race, not an abort.
	resp, _ = do(t, srv, http.MethodPost, "/p2p/trades/"+tradeID+"/cancel", "usr_taker", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Maker confirms; the escrow lands with the taker.
	resp, env = do(t, srv, http.MethodPost, "/p2p/trades/"+tradeID+"/confirm", "usr_maker", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "error: %s", env.Error)
	assert.Equal(t, "completed", env.Data["trade"].(map[string]interface{})["status"])

	// A second confirm arrives too late.
	resp, _ = do(t, srv, http.MethodPost, "/p2p/trades/"+tradeID+"/confirm", "usr_maker", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, env = do(t, srv, http.MethodGet, "/p2p/balances", "usr_taker", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balances := env.Data["balances"].([]interface{})
	require.Len(t, balances, 1)
	assert.Equal(t, "30", balances[0].(map[string]interface{})["available"])

	// A stranger cannot see the trade at all.
	resp, _ = do(t, srv, http.MethodGet, "/p2p/trades/"+tradeID, "usr_stranger", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAcceptIneligibleTaker(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/p2p/funding/credit", "", map[string]interface{}{
		"user_id": "usr_maker", "token": "HEZ", "amount": "100",
	})

	resp, env := do(t, srv, http.MethodPost, "/p2p/offers", "usr_maker", map[string]interface{}{
		"token": "HEZ", "fiat_currency": "USD",
		"price_per_unit": "2", "total_amount": "100",
		"min_completed_trades": 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	offerID := env.Data["offer"].(map[string]interface{})["id"].(string)

	// No reputation record at all.
	resp, _ = do(t, srv, http.MethodPost, "/p2p/offers/"+offerID+"/accept", "usr_new", map[string]interface{}{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The scorer publishes two completed trades; five are required.
	resp, _ = do(t, srv, http.MethodPut, "/p2p/reputation/usr_new", "", map[string]interface{}{
		"total_trades": 2, "completed_trades": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/p2p/offers/"+offerID+"/accept", "usr_new", map[string]interface{}{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAcceptUnderfundedMaker(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/p2p/funding/credit", "", map[string]interface{}{
		"user_id": "usr_maker", "token": "HEZ", "amount": "10",
	})

	resp, env := do(t, srv, http.MethodPost, "/p2p/offers", "usr_maker", map[string]interface{}{
		"token": "HEZ", "fiat_currency": "USD",
		"price_per_unit": "2", "total_amount": "100",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	offerID := env.Data["offer"].(map[string]interface{})["id"].(string)

	resp, _ = do(t, srv, http.MethodPost, "/p2p/offers/"+offerID+"/accept", "usr_taker", map[string]interface{}{
		"amount": "30",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Capacity was compensated back.
	resp, env = do(t, srv, http.MethodGet, "/p2p/offers/"+offerID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "100", env.Data["offer"].(map[string]interface{})["remaining_amount"])
}

func TestArbitrationOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/p2p/funding/credit", "", map[string]interface{}{
		"user_id": "usr_maker", "token": "HEZ", "amount": "100",
	})
	resp, env := do(t, srv, http.MethodPost, "/p2p/offers", "usr_maker", map[string]interface{}{
		"token": "HEZ", "fiat_currency": "USD",
		"price_per_unit": "2", "total_amount": "100",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	offerID := env.Data["offer"].(map[string]interface{})["id"].(string)

	resp, env = do(t, srv, http.MethodPost, "/p2p/offers/"+offerID+"/accept", "usr_taker", map[string]interface{}{
		"amount": "30",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tradeID := env.Data["trade"].(map[string]interface{})["id"].(string)

	resp, _ = do(t, srv, http.MethodPost, "/p2p/trades/"+tradeID+"/payment-sent", "usr_taker", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodPost, "/p2p/trades/"+tradeID+"/dispute", "usr_maker", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = do(t, srv, http.MethodPost, "/p2p/trades/"+tradeID+"/arbitrate", "", map[string]interface{}{
		"outcome": "refunded",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "error: %s", env.Error)
	assert.Equal(t, "refunded", env.Data["trade"].(map[string]interface{})["status"])
}
