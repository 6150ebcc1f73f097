package admin

import (
	"encoding/json"
	"net/http"

	"github.com/sipico/admin-auth/internal/apperr"
	"github.com/sipico/admin-auth/internal/auth"
	"github.com/sipico/admin-auth/internal/logging"
)

// SetLogLevelRequest is the request body for POST /api/loglevel.
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// HandleSetLogLevel changes the runtime log level.
// POST /api/loglevel
// Body: {"level": "debug|info|warn|error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Level == "" {
		WriteAppError(w, h.logger, apperr.Validation("level is required"))
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		WriteAppError(w, h.logger, apperr.Validation("%s", err.Error()))
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "new_level", level.String())

	writeJSON(w, http.StatusOK, map[string]string{"level": level.String()})
}

// HandleWhoami returns the token that authenticated the request.
// GET /api/whoami
func (h *Handler) HandleWhoami(w http.ResponseWriter, r *http.Request) {
	tok := auth.TokenFromContext(r.Context())
	if tok == nil {
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Missing or invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}
