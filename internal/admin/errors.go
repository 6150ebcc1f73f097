package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sipico/admin-auth/internal/apperr"
)

// Error codes specific to the ops API. Domain errors use the apperr codes.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeBodyTooLarge   = "body_too_large"
	ErrCodeInternalError  = apperr.CodeInternal
	internalErrorMessage  = "internal error"
)

// APIError is the error response format for the ops API.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Error: code, Message: message})
}

// WriteAppError maps err to a status and code via apperr. Messages of
// uncategorised errors are logged and replaced with a generic one.
func WriteAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		WriteError(w, status, ErrCodeInternalError, internalErrorMessage)
		return
	}
	WriteError(w, status, apperr.Code(err), err.Error())
}

// writeDecodeError answers a request whose JSON body could not be read.
func writeDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeBodyTooLarge, "request body too large")
		return
	}
	WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(v)
}
