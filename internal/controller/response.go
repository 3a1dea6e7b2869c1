package controller

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/middleware"
)

// RespondWithJSON writes payload as the response body.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// errorResponse is the wire shape of controller-level failures. It carries the
// turn's request ID so staff can quote it to support; err detail stays in the
// log, not on the wire, because it may reference internal paths.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

// RespondWithError logs the failure under the request ID and returns the
// user-presentable message.
func RespondWithError(w http.ResponseWriter, r *http.Request, code int, message string, err error) {
	requestID := middleware.RequestID(r)

	log.Error().
		Err(err).
		Str("request_id", requestID).
		Int("status", code).
		Str("message", message).
		Msg("Request error")

	RespondWithJSON(w, code, errorResponse{
		Error:     message,
		RequestID: requestID,
	})
}
