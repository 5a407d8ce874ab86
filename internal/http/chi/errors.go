package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/heatmap-webhooks/webhook"
)

const (
	codeBadRequest   = "BAD_REQUEST"
	codeUnauthorized = "UNAUTHORIZED"
	codeNotFound     = "NOT_FOUND"
	codeValidation   = "VALIDATION_ERROR"
	codeRateLimited  = "RATE_LIMIT_EXCEEDED"
	codeInternal     = "INTERNAL_ERROR"
)

// errorResponse is the error envelope shared by every endpoint
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// writeServiceError maps domain errors to status codes; anything unexpected is logged and hidden
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, webhook.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "Webhook configuration not found")
	case errors.Is(err, webhook.ErrInvalidSubscription), errors.Is(err, webhook.ErrInvalidEvent):
		writeError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
	default:
		log := httplog.LogEntry(r.Context())
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
	}
}
