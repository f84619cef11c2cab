// internal/middleware/identity.go
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const (
	ContextUserID        contextKey = "userID"
	ContextWalletAddress contextKey = "walletAddress"
)

// Identity lifts the gateway-supplied identity headers into the request
// context. Authentication happens upstream; the core only ever sees an
// opaque, already-authenticated user id and never keeps ambient
// "current user" state.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-Id")
			if userID == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"error":   "missing identity",
				})
				return
			}

			ctx := context.WithValue(r.Context(), ContextUserID, userID)
			if wallet := r.Header.Get("X-Wallet-Address"); wallet != "" {
				ctx = context.WithValue(ctx, ContextWalletAddress, wallet)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the acting user id from the request context.
func GetUserID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextUserID).(string)
	return val, ok
}

// GetWalletAddress returns the caller's wallet address, when supplied.
func GetWalletAddress(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextWalletAddress).(string)
	return val, ok
}
