package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"marketplace/internal/models"

	"github.com/rs/zerolog"
)

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeNotFound        = "NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeConflict        = "INVALID_TRANSITION"
	CodeDuplicate       = "DUPLICATE_REQUEST"
	CodeValidation      = "VALIDATION_FAILED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL"
)

func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Error: APIError{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorStatus maps service errors onto HTTP status and envelope code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, models.ErrDuplicateRequest):
		return http.StatusConflict, CodeDuplicate
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidStatus):
		return http.StatusBadRequest, CodeValidation
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeServiceError writes the envelope for err. Internal errors are logged
// and their text is not sent to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", requestID(r.Context())).
			Msg("request failed")
		msg = "internal error"
	}
	WriteError(w, status, code, msg)
}
