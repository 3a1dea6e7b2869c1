package middleware

import (
	"context"
	"net/http"

	"github.com/aibanking/lending-assistant/internal/config"
)

type contextKey string

// UserIDKey carries the authenticated staff user's identity.
const UserIDKey contextKey = "user_id"

// AuthMiddleware validates the API key header and binds the staff user's
// identity into the request context
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health check endpoints
		if r.URL.Path == "/health" || r.URL.Path == "/ready" {
			next.ServeHTTP(w, r)
			return
		}

		sec := config.AppConfig.Security

		apiKey := r.Header.Get(sec.APIKeyHeader)
		if apiKey == "" || (sec.APIKey != "" && apiKey != sec.APIKey) {
			http.Error(w, "Unauthorized: Missing or invalid API key", http.StatusUnauthorized)
			return
		}

		userID := r.Header.Get(sec.UserIDHeader)
		if userID == "" {
			http.Error(w, "Unauthorized: Missing user identity", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user from the request context.
func UserID(r *http.Request) string {
	if v, ok := r.Context().Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
