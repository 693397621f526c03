package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps kernel and engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, kernel.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, kernel.ErrInvalidScenario):
		return http.StatusBadRequest
	case errors.Is(err, kernel.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, negotiation.ErrConverged),
		errors.Is(err, negotiation.ErrNotStarted),
		errors.Is(err, negotiation.ErrNotComparisonMode),
		errors.Is(err, kernel.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("http_handler_failed", "path", r.URL.Path, "error", err.Error())
	}
	writeError(w, status, err.Error())
}
