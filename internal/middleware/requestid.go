package middleware

import (
	"context"
	"net/http"

	"github.com/aibanking/lending-assistant/internal/utils"
)

// RequestIDKey carries the per-turn trace ID.
const RequestIDKey contextKey = "request_id"

// RequestIDMiddleware assigns every request a trace ID, honoring an inbound
// X-Request-ID when present, and echoes it in the response headers.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = utils.NewRequestID()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID extracts the trace ID from the request context.
func RequestID(r *http.Request) string {
	if v, ok := r.Context().Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}
