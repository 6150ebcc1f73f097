package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/sipico/admin-auth/internal/metrics"
	"github.com/sipico/admin-auth/internal/permission"
	"github.com/sipico/admin-auth/internal/token"
)

// Authenticator resolves a bearer secret to a token.
type Authenticator interface {
	Authenticate(ctx context.Context, plaintext string) (*token.Token, error)
}

// TokenMiddleware returns Chi-compatible middleware that authenticates the
// bearer token and stores it in the request context.
func TokenMiddleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := extractBearerToken(r)
			if secret == "" {
				metrics.RecordAuthFailure("missing_token")
				writeJSONError(w, http.StatusUnauthorized, "Missing or invalid credentials")
				return
			}

			tok, err := a.Authenticate(r.Context(), secret)
			switch {
			case errors.Is(err, token.ErrTokenExpired):
				metrics.RecordAuthFailure("expired_token")
				writeJSONError(w, http.StatusUnauthorized, "Token expired")
				return
			case errors.Is(err, token.ErrInvalidToken):
				metrics.RecordAuthFailure("invalid_token")
				writeJSONError(w, http.StatusUnauthorized, "Missing or invalid credentials")
				return
			case err != nil:
				metrics.RecordAuthFailure("error")
				writeJSONError(w, http.StatusInternalServerError, "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), tok)))
		})
	}
}

// RequireAction rejects requests whose token may not perform action.
// It must run after TokenMiddleware.
func RequireAction(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Allows(TokenFromContext(r.Context()), action) {
				metrics.RecordAuthFailure("forbidden")
				writeJSONError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Allows reports whether tok grants action. Full-access tokens grant
// everything, read-only tokens grant find and findOne actions, and custom or
// untyped tokens grant the actions they list.
func Allows(tok *token.Token, action string) bool {
	if tok == nil {
		return false
	}
	switch tok.Type {
	case permission.TypeFullAccess:
		return true
	case permission.TypeReadOnly:
		return strings.HasSuffix(action, ".find") || strings.HasSuffix(action, ".findOne")
	default:
		return slices.Contains(tok.Permissions, action)
	}
}

// extractBearerToken gets token from "Authorization: Bearer <token>" header
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeJSONError writes a JSON error response
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are not critical for error responses
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
