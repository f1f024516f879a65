package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/user/githubalerts/internal/domain"
	"github.com/user/githubalerts/pkg/logger"
)

// ErrorResponse is the body of every error returned by the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorStatus maps domain failures to HTTP. The first match wins; anything
// unmatched is a 500 with a generic message.
var errorStatus = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrSlackUserNotFound, http.StatusNotFound, "slack_user_not_found"},
	{domain.ErrRepositoryNotFound, http.StatusBadRequest, "repository_not_found"},
	{domain.ErrUserNotFound, http.StatusConflict, "user_not_found"},
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		msg = "An internal error occurred"
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: msg})
}
