package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sipico/admin-auth/internal/apperr"
	"github.com/sipico/admin-auth/internal/config"
	"github.com/sipico/admin-auth/internal/events"
	"github.com/sipico/admin-auth/internal/expiry"
	"github.com/sipico/admin-auth/internal/metrics"
	"github.com/sipico/admin-auth/internal/permission"
	"github.com/sipico/admin-auth/internal/secret"
	"github.com/sipico/admin-auth/internal/storage"
)

// Lifecycle manages the tokens of one Family.
type Lifecycle struct {
	family Family
	store  storage.Store
	cfg    secret.ConfigStore
	hasher secret.Hasher
	cipher secret.Cipher
	bus    events.Bus
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(lc *Lifecycle) { lc.logger = l }
}

// WithEventBus sets the bus receiving "<family>.<operation>" events.
func WithEventBus(b events.Bus) Option {
	return func(lc *Lifecycle) { lc.bus = b }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(lc *Lifecycle) { lc.now = now }
}

// New creates a Lifecycle for family backed by store. Salts and the
// encryption key are read from cfg on every use.
func New(family Family, store storage.Store, cfg secret.ConfigStore, opts ...Option) *Lifecycle {
	lc := &Lifecycle{
		family: family,
		store:  store,
		cfg:    cfg,
		bus:    events.Nop{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(lc)
	}
	lc.logger = lc.logger.With("family", family.Name)
	lc.hasher = secret.Hasher{Config: cfg, SaltPath: family.Salt.Path}
	lc.cipher = secret.Cipher{Config: cfg, KeyPath: config.EncryptionKeyPath, Logger: lc.logger}
	return lc
}

// Family returns the family served by lc.
func (lc *Lifecycle) Family() Family {
	return lc.family
}

// CheckSalt verifies a salt is configured for the family. Call at startup.
func (lc *Lifecycle) CheckSalt() error {
	return secret.CheckSaltIsDefined(lc.cfg, lc.family.Salt, lc.logger)
}

// Create validates params, stores a new token and returns it with the
// plaintext secret in AccessKey.
func (lc *Lifecycle) Create(ctx context.Context, params CreateParams) (tok *Token, err error) {
	defer lc.observe("create", &err)

	name, err := validateName(params.Name)
	if err != nil {
		return nil, err
	}
	tokenType, err := lc.resolveType(params.Type)
	if err != nil {
		return nil, err
	}
	if err := lc.family.Lifespans.Assert(params.Lifespan); err != nil {
		return nil, err
	}
	grants := lc.family.grantsOf(params.Permissions, params.Roles)
	if err := lc.assertGrants(ctx, lc.store, tokenType, grants, grants != nil); err != nil {
		return nil, err
	}

	plaintext, record, err := lc.newSecret()
	if err != nil {
		return nil, err
	}

	now := lc.now().UTC()
	exp := expiry.Compute(params.Lifespan, now)
	row := &storage.Token{
		Family:       lc.family.Name,
		Name:         name,
		Description:  params.Description,
		Type:         tokenType,
		AccessKey:    record.hash,
		EncryptedKey: record.encrypted,
		Lifespan:     exp.Lifespan,
		ExpiresAt:    exp.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
		Grants:       permission.Unique(grants),
	}

	err = lc.store.WithTx(ctx, func(tx storage.Store) error {
		if err := lc.assertNameFree(ctx, tx, name, 0); err != nil {
			return err
		}
		created, err := tx.CreateToken(ctx, row)
		if errors.Is(err, storage.ErrDuplicate) {
			return apperr.Validation("Name already taken")
		}
		row = created
		return err
	})
	if err != nil {
		return nil, err
	}

	lc.logger.Info("token created", "id", row.ID, "name", row.Name)
	lc.emit(ctx, "create", row)

	tok = lc.family.view(row)
	tok.AccessKey = plaintext
	return tok, nil
}

// Update applies a partial update. Permissions are re-validated only when
// supplied or when the type changes to custom, and only the delta is written.
func (lc *Lifecycle) Update(ctx context.Context, id int64, params UpdateParams) (tok *Token, err error) {
	defer lc.observe("update", &err)

	var row *storage.Token
	err = lc.store.WithTx(ctx, func(tx storage.Store) error {
		current, err := tx.GetTokenByID(ctx, lc.family.Name, id)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("Token not found")
		}
		if err != nil {
			return err
		}

		if params.Name != nil {
			name, err := validateName(*params.Name)
			if err != nil {
				return err
			}
			if name != current.Name {
				if err := lc.assertNameFree(ctx, tx, name, current.ID); err != nil {
					return err
				}
			}
			current.Name = name
		}
		if params.Description != nil {
			current.Description = *params.Description
		}

		prevType := current.Type
		if params.Type != nil && lc.family.Typed {
			t, err := lc.resolveType(*params.Type)
			if err != nil {
				return err
			}
			current.Type = t
		}

		requested := lc.family.grantsOf(params.Permissions, params.Roles)
		becameCustom := lc.family.Typed && current.Type == permission.TypeCustom && prevType != permission.TypeCustom
		if requested != nil || becameCustom {
			check := requested
			if check == nil {
				check = current.Grants
			}
			if err := lc.assertGrants(ctx, tx, current.Type, check, true); err != nil {
				return err
			}
		}

		if params.Lifespan.Set {
			if err := lc.family.Lifespans.Assert(params.Lifespan.Value); err != nil {
				return err
			}
			exp := expiry.Compute(params.Lifespan.Value, lc.now().UTC())
			current.Lifespan, current.ExpiresAt = exp.Lifespan, exp.ExpiresAt
		}

		if err := tx.UpdateToken(ctx, current); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return apperr.Validation("Name already taken")
			}
			return err
		}

		switch {
		case lc.family.Typed && current.Type != permission.TypeCustom:
			if len(current.Grants) > 0 {
				if err := tx.ClearGrants(ctx, current.ID); err != nil {
					return err
				}
			}
			current.Grants = []string{}
		case requested != nil:
			delta := permission.Reconcile(current.Grants, requested)
			// Removals first so a value is never linked twice mid-update.
			if err := tx.RemoveGrants(ctx, current.ID, delta.ToRemove); err != nil {
				return err
			}
			if err := tx.AddGrants(ctx, current.ID, delta.ToAdd); err != nil {
				return err
			}
			if current.Grants, err = tx.ListGrants(ctx, current.ID); err != nil {
				return err
			}
		}

		row = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	lc.emit(ctx, "update", row)
	return lc.family.view(row), nil
}

// Regenerate replaces the secret of a token. The previous secret stops
// working immediately.
func (lc *Lifecycle) Regenerate(ctx context.Context, id int64) (res *Regenerated, err error) {
	defer lc.observe("regenerate", &err)

	row, err := lc.store.GetTokenByID(ctx, lc.family.Name, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("The provided token id does not exist")
	}
	if err != nil {
		return nil, err
	}

	plaintext, record, err := lc.newSecret()
	if err != nil {
		return nil, err
	}
	if err := lc.store.SetTokenSecret(ctx, lc.family.Name, row.ID, record.hash, record.encrypted); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("The provided token id does not exist")
		}
		return nil, err
	}

	lc.logger.Info("token regenerated", "id", row.ID, "name", row.Name)
	lc.emit(ctx, "regenerate", row)
	return &Regenerated{ID: row.ID, AccessKey: plaintext}, nil
}

// Revoke deletes a token and returns it, or nil when it did not exist.
func (lc *Lifecycle) Revoke(ctx context.Context, id int64) (tok *Token, err error) {
	defer lc.observe("revoke", &err)

	var row *storage.Token
	err = lc.store.WithTx(ctx, func(tx storage.Store) error {
		current, err := tx.GetTokenByID(ctx, lc.family.Name, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteToken(ctx, lc.family.Name, id); err != nil {
			return err
		}
		row = current
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lc.logger.Info("token revoked", "id", row.ID, "name", row.Name)
	lc.emit(ctx, "delete", row)
	return lc.family.view(row), nil
}

// List returns every token of the family ordered by name.
func (lc *Lifecycle) List(ctx context.Context) ([]*Token, error) {
	rows, err := lc.store.ListTokens(ctx, lc.family.Name)
	if err != nil {
		return nil, err
	}
	out := make([]*Token, len(rows))
	for i, r := range rows {
		out[i] = lc.family.view(r)
	}
	return out, nil
}

// GetByID returns the token, or nil when it does not exist.
func (lc *Lifecycle) GetByID(ctx context.Context, id int64) (*Token, error) {
	return lc.get(lc.store.GetTokenByID(ctx, lc.family.Name, id))
}

// GetByName returns the token, or nil when it does not exist.
func (lc *Lifecycle) GetByName(ctx context.Context, name string) (*Token, error) {
	return lc.get(lc.store.GetTokenByName(ctx, lc.family.Name, name))
}

func (lc *Lifecycle) get(row *storage.Token, err error) (*Token, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lc.family.view(row), nil
}

// Exists reports whether a token named name exists in the family.
func (lc *Lifecycle) Exists(ctx context.Context, name string) (bool, error) {
	tok, err := lc.GetByName(ctx, name)
	return tok != nil, err
}

// RevealAccessKey returns the plaintext secret of a token stored with a
// recoverable ciphertext. ok is false when the token does not exist, holds no
// ciphertext, or cannot be decrypted with the current key.
func (lc *Lifecycle) RevealAccessKey(ctx context.Context, id int64) (string, bool, error) {
	row, err := lc.store.GetTokenByID(ctx, lc.family.Name, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if row.EncryptedKey == "" {
		return "", false, nil
	}

	plaintext, ok, err := lc.cipher.Decrypt(row.EncryptedKey)
	if err != nil {
		lc.logger.Warn("stored encrypted key is unreadable", "id", row.ID, "error", err)
		return "", false, nil
	}
	return plaintext, ok, nil
}

type secretRecord struct {
	hash      string
	encrypted string
}

func (lc *Lifecycle) newSecret() (string, secretRecord, error) {
	plaintext, err := secret.GenerateSecret()
	if err != nil {
		return "", secretRecord{}, err
	}
	hash, err := lc.hasher.Hash(plaintext)
	if err != nil {
		return "", secretRecord{}, err
	}

	rec := secretRecord{hash: hash}
	if lc.family.Encrypt {
		enc, ok, err := lc.cipher.Encrypt(plaintext)
		if err != nil {
			return "", secretRecord{}, err
		}
		if ok {
			rec.encrypted = enc
		}
	}
	return plaintext, rec, nil
}

func (lc *Lifecycle) resolveType(t string) (string, error) {
	if !lc.family.Typed {
		return "", nil
	}
	if !permission.ValidType(t) {
		return "", apperr.Validation("type must be one of the following values: %s, %s, %s",
			permission.TypeReadOnly, permission.TypeFullAccess, permission.TypeCustom)
	}
	return t, nil
}

func (lc *Lifecycle) assertGrants(ctx context.Context, st storage.Store, tokenType string, grants []string, present bool) error {
	if lc.family.Grant == GrantPermissions {
		return permission.AssertValid(tokenType, lc.family.Typed, grants, present, lc.family.Registry)
	}

	if !present {
		return apperr.Validation("Missing roles attribute for service account token")
	}
	if len(grants) == 0 {
		return apperr.Validation("Service account tokens must reference at least one role")
	}
	reg, err := lc.roleRegistry(ctx, st)
	if err != nil {
		return err
	}
	return permission.AssertKnownNamed("roles", grants, reg)
}

// roleRegistry reads role codes through st, which must be the transaction
// store when called inside WithTx.
func (lc *Lifecycle) roleRegistry(ctx context.Context, st storage.Store) (permission.Registry, error) {
	if lc.family.Registry != nil {
		return lc.family.Registry, nil
	}
	roles, err := st.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	codes := make([]string, len(roles))
	for i, r := range roles {
		codes[i] = r.Code
	}
	return permission.FromKeys(codes...), nil
}

func (lc *Lifecycle) assertNameFree(ctx context.Context, tx storage.Store, name string, selfID int64) error {
	existing, err := tx.GetTokenByName(ctx, lc.family.Name, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return apperr.Validation("Name already taken")
	}
	return nil
}

func (lc *Lifecycle) emit(ctx context.Context, op string, row *storage.Token) {
	lc.bus.Emit(ctx, lc.family.Name+"."+op, map[string]any{"id": row.ID, "name": row.Name})
}

func (lc *Lifecycle) observe(op string, err *error) {
	outcome := "success"
	if *err != nil {
		outcome = "error"
	}
	metrics.RecordTokenOperation(lc.family.Name, op, outcome)
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is a required field")
	}
	return name, nil
}
