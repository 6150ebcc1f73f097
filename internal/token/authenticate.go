package token

import (
	"context"
	"errors"
	"time"

	"github.com/sipico/admin-auth/internal/expiry"
	"github.com/sipico/admin-auth/internal/storage"
)

// lastUsedResolution bounds how often lastUsedAt is written for a busy token.
const lastUsedResolution = time.Hour

// Authenticate resolves a bearer secret to its token. It returns
// ErrInvalidToken for an unknown secret and ErrTokenExpired for a token past
// its expiry.
func (lc *Lifecycle) Authenticate(ctx context.Context, plaintext string) (*Token, error) {
	if plaintext == "" {
		return nil, ErrInvalidToken
	}

	hash, err := lc.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	row, err := lc.store.GetTokenByAccessKey(ctx, lc.family.Name, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	now := lc.now().UTC()
	if expiry.Expired(row.ExpiresAt, now) {
		return nil, ErrTokenExpired
	}

	if row.LastUsedAt == nil || now.Sub(*row.LastUsedAt) >= lastUsedResolution {
		if err := lc.store.TouchToken(ctx, row.ID, now); err != nil {
			lc.logger.Warn("failed to record token use", "id", row.ID, "error", err)
		} else {
			row.LastUsedAt = &now
		}
	}

	return lc.family.view(row), nil
}
