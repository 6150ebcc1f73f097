package auth

import (
	"context"

	"github.com/sipico/admin-auth/internal/storage"
	"github.com/sipico/admin-auth/internal/token"
)

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey int

const (
	tokenKey ctxKey = iota // stores *token.Token
	userKey                // stores *storage.User
)

// TokenFromContext retrieves the authenticated token from context.
// Returns nil if the request was not authenticated with a token.
func TokenFromContext(ctx context.Context) *token.Token {
	if v := ctx.Value(tokenKey); v != nil {
		if tok, ok := v.(*token.Token); ok {
			return tok
		}
	}
	return nil
}

// WithToken adds a token to the context.
func WithToken(ctx context.Context, tok *token.Token) context.Context {
	return context.WithValue(ctx, tokenKey, tok)
}

// UserFromContext retrieves the authenticated admin user from context.
func UserFromContext(ctx context.Context) *storage.User {
	if v := ctx.Value(userKey); v != nil {
		if u, ok := v.(*storage.User); ok {
			return u
		}
	}
	return nil
}

// WithUser adds an admin user to the context.
func WithUser(ctx context.Context, u *storage.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}
