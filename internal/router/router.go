// internal/router/router.go
package router

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	rh "p2p-escrow-service/internal/handler/rest"
	mw "p2p-escrow-service/internal/middleware"
)

func SetupRoutes(
	r chi.Router,
	h *rh.Handler,
	rdb *redis.Client,
) chi.Router {

	// ---- Global Middleware ----
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id", "X-Wallet-Address"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Global rate limiting
	r.Use(mw.RateLimiter(rdb, 100, time.Minute, 10*time.Minute, "global"))

	// ============================================================
	// P2P ROUTES
	// ============================================================
	r.Route("/p2p", func(pr chi.Router) {

		// ---------- Public ----------
		pr.Get("/health", h.Health)
		pr.Get("/offers", h.ListOffers)
		pr.Get("/offers/{id}", h.GetOffer)

		// ---------- Authenticated ----------
		pr.Group(func(authPr chi.Router) {
			authPr.Use(mw.Identity())

			// ============ OFFER MANAGEMENT ============
			authPr.Post("/offers", h.CreateOffer)
			authPr.Patch("/offers/{id}/status", h.SetOfferStatus)
			authPr.Post("/offers/{id}/accept", h.AcceptOffer)

			// ============ TRADE LIFECYCLE ============
			authPr.Get("/trades", h.ListTrades)
			authPr.Get("/trades/{id}", h.GetTrade)
			authPr.Post("/trades/{id}/payment-sent", h.MarkPaymentSent)
			authPr.Post("/trades/{id}/confirm", h.ConfirmPayment)
			authPr.Post("/trades/{id}/cancel", h.CancelTrade)
			authPr.Post("/trades/{id}/dispute", h.RaiseDispute)

			// ============ LEDGER ============
			authPr.Get("/balances", h.ListBalances)
		})

		// ---------- Internal collaborators ----------
		// Funding, reputation scoring and arbitration live behind the
		// gateway on an internal network, so no user identity is required.
		pr.Post("/funding/credit", h.Credit)
		pr.Post("/funding/debit", h.Debit)
		pr.Put("/reputation/{userId}", h.UpsertReputation)
		pr.Post("/trades/{id}/arbitrate", h.Arbitrate)
	})

	return r
}
