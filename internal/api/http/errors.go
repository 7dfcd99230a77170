package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, domain.ErrIdempotencyViolation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMissingPrerequisite):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrProviderRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}
