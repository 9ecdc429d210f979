// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/orderflow-core/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, errorResponse{Error: message})
}

// StatusFor maps an error's kind to the HTTP status returned for it.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindState:
		return http.StatusConflict
	case apperr.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError answers with the status for err's kind. Errors without a
// kind are logged and reported as an internal error.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error, msg string, args ...any) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, append([]any{"error", err}, args...)...)
		WriteError(w, logger, status, "internal server error")
		return
	}

	var de *apperr.Error
	errors.As(err, &de)
	logger.Info(msg, append([]any{"error", err, "code", de.Code}, args...)...)
	WriteJSON(w, logger, status, errorResponse{Error: err.Error(), Code: de.Code})
}

// DecodeJSON reads a JSON request body into v. It rejects unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
