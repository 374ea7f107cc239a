// Package api implements the dagaz REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/starford/dagaz/internal/storage"
)

// UserHeader carries the caller's identity, set by the fronting auth layer.
const UserHeader = "X-User-ID"

type ctxKey struct{}

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
// If enabled is true, requests must carry a valid "Authorization: Bearer <token>" header.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserMiddleware resolves the acting user from UserHeader, falling back to
// defaultUser, and stores it in the request context.
func UserMiddleware(defaultUser string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get(UserHeader))
			if user == "" {
				user = defaultUser
			}
			if err := storage.ValidUser(user); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("invalid "+UserHeader))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
		})
	}
}

// UserFrom returns the user stored by UserMiddleware.
func UserFrom(r *http.Request) string {
	user, _ := r.Context().Value(ctxKey{}).(string)
	return user
}
