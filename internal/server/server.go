// internal/server/server.go
package server

import (
	"context"
	"log"
	"net/http"

	"p2p-escrow-service/internal/config"
	rh "p2p-escrow-service/internal/handler/rest"
	"p2p-escrow-service/internal/repository"
	"p2p-escrow-service/internal/router"
	"p2p-escrow-service/internal/usecase/escrow"
	"p2p-escrow-service/internal/usecase/offer"
	"p2p-escrow-service/internal/usecase/reputation"
	"p2p-escrow-service/internal/usecase/trade"
	"p2p-escrow-service/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func NewServer(cfg config.AppConfig) (*http.Server, func()) {
	// --- Init Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	// --- Connect Postgres ---
	db, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("failed to connect DB: %v", err)
	}

	// --- Init Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Println("[Redis] Connected successfully")

	// --- Init Repositories ---
	var (
		offerRepo      repository.OfferStore      = repository.NewOfferRepository(db, logger)
		ledgerRepo     repository.LedgerStore     = repository.NewLedgerRepository(db, logger)
		tradeRepo      repository.TradeStore      = repository.NewTradeRepository(db, logger)
		reputationRepo repository.ReputationStore = repository.NewReputationRepository(db, logger)
	)

	// --- Init Usecases ---
	gate := reputation.NewGate(reputationRepo, logger)
	offerSvc := offer.NewService(offerRepo, logger)
	tradeSvc := trade.NewService(tradeRepo, offerRepo, ledgerRepo, logger)
	coordinator := escrow.NewCoordinator(offerRepo, ledgerRepo, tradeRepo, gate, logger)

	// --- Init Handlers ---
	h := rh.NewHandler(offerSvc, tradeSvc, coordinator, ledgerRepo, reputationRepo, logger)

	log.Println("[P2P] Handlers initialized")

	// --- Deadline sweeper ---
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	sweeper := worker.NewDeadlineSweeper(tradeSvc, rdb, cfg.SweepInterval, logger)
	go sweeper.Run(sweepCtx)

	// --- Router ---
	r := chi.NewRouter()
	r = router.SetupRoutes(r, h, rdb).(*chi.Mux)

	cleanup := func() {
		cancelSweep()
		db.Close()
		rdb.Close()
		logger.Sync()
	}

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}, cleanup
}
