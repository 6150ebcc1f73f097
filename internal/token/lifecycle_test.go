package token

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/admin-auth/internal/apperr"
	"github.com/sipico/admin-auth/internal/config"
	"github.com/sipico/admin-auth/internal/events"
	"github.com/sipico/admin-auth/internal/expiry"
	"github.com/sipico/admin-auth/internal/permission"
	"github.com/sipico/admin-auth/internal/storage"
	"github.com/sipico/admin-auth/internal/testutil/mockstore"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]+$`)

func newSettings() *config.Store {
	return config.NewMemoryStore(map[string]any{
		config.APITokenSaltPath:       "api-salt",
		config.TransferTokenSaltPath:  "transfer-salt",
		config.ServiceAccountSaltPath: "sa-salt",
		config.EncryptionKeyPath:      "encryption-key",
	})
}

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newAPILifecycle(t *testing.T, keys ...string) (*Lifecycle, *storage.SQLiteStorage) {
	t.Helper()
	s := newStore(t)
	lc := New(APITokenFamily(permission.FromKeys(keys...)), s, newSettings(),
		WithLogger(slog.New(slog.DiscardHandler)))
	return lc, s
}

func TestCreate_ReadOnlyStoresHashOnly(t *testing.T) {
	t.Parallel()

	lc, s := newAPILifecycle(t)
	ctx := context.Background()

	tok, err := lc.Create(ctx, CreateParams{Name: "t1", Type: permission.TypeReadOnly})
	require.NoError(t, err)

	assert.Len(t, tok.AccessKey, 256)
	assert.Regexp(t, hexRe, tok.AccessKey)
	assert.Equal(t, []string{}, tok.Permissions)
	assert.Nil(t, tok.Lifespan)
	assert.Nil(t, tok.ExpiresAt)

	stored, err := s.GetTokenByName(ctx, APIToken, "t1")
	require.NoError(t, err)
	assert.Len(t, stored.AccessKey, 128)
	assert.Regexp(t, hexRe, stored.AccessKey)
	assert.NotEqual(t, tok.AccessKey, stored.AccessKey)
	assert.Empty(t, stored.EncryptedKey, "api tokens keep no recoverable secret")

	got, err := lc.GetByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AccessKey, "secret is only observable at creation")
}

func TestCreate_CustomDeduplicatesPermissions(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t, "x")

	tok, err := lc.Create(context.Background(), CreateParams{
		Name:        "dedup",
		Type:        permission.TypeCustom,
		Permissions: []string{"x", "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, tok.Permissions)

	got, err := lc.GetByName(context.Background(), "dedup")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Permissions)
}

func TestCreate_DedupKeepsDistinctSet(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t, "a", "b")

	tok, err := lc.Create(context.Background(), CreateParams{
		Name:        "set",
		Type:        permission.TypeCustom,
		Permissions: []string{"a", "a", "b"},
	})
	require.NoError(t, err)

	got := append([]string(nil), tok.Permissions...)
	sort.Strings(got)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCreate_UnknownPermissions(t *testing.T) {
	t.Parallel()

	lc, s := newAPILifecycle(t, "x")
	ctx := context.Background()

	_, err := lc.Create(ctx, CreateParams{
		Name:        "bad",
		Type:        permission.TypeCustom,
		Permissions: []string{"x", "y"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "Unknown permissions provided: y", err.Error())

	_, err = s.GetTokenByName(ctx, APIToken, "bad")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreate_Validation(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t, "x")
	ctx := context.Background()

	tests := []struct {
		name    string
		params  CreateParams
		wantMsg string
	}{
		{
			name:    "blank name",
			params:  CreateParams{Name: "  ", Type: permission.TypeReadOnly},
			wantMsg: "name is a required field",
		},
		{
			name:    "unknown type",
			params:  CreateParams{Name: "n", Type: "admin"},
			wantMsg: "type must be one of the following values: read-only, full-access, custom",
		},
		{
			name:    "lifespan outside allowed set",
			params:  CreateParams{Name: "n", Type: permission.TypeReadOnly, Lifespan: expiry.Ptr(1000)},
			wantMsg: "lifespan must be one of the following values: null, 604800000, 2592000000, 7776000000",
		},
		{
			name:    "permissions on full-access",
			params:  CreateParams{Name: "n", Type: permission.TypeFullAccess, Permissions: []string{"x"}},
			wantMsg: "Non-custom tokens should not reference permissions",
		},
		{
			name:    "custom without permissions",
			params:  CreateParams{Name: "n", Type: permission.TypeCustom},
			wantMsg: "Missing permissions attribute for custom token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lc.Create(ctx, tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestCreate_NameAlreadyTaken(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t)
	ctx := context.Background()

	_, err := lc.Create(ctx, CreateParams{Name: "dup", Type: permission.TypeReadOnly})
	require.NoError(t, err)

	_, err = lc.Create(ctx, CreateParams{Name: " dup ", Type: permission.TypeFullAccess})
	require.Error(t, err)
	assert.Equal(t, "Name already taken", err.Error())

	exists, err := lc.Exists(ctx, "dup")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreate_LifespanSetsExpiry(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t)
	before := time.Now()

	tok, err := lc.Create(context.Background(), CreateParams{
		Name:     "expiring",
		Type:     permission.TypeReadOnly,
		Lifespan: expiry.Ptr(expiry.ThirtyDays),
	})
	require.NoError(t, err)

	require.NotNil(t, tok.Lifespan)
	require.NotNil(t, tok.ExpiresAt)
	assert.Equal(t, expiry.ThirtyDays, *tok.Lifespan)
	assert.WithinDuration(t, before.Add(30*24*time.Hour), *tok.ExpiresAt, 2*time.Second)
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t, "a", "b", "c")
	ctx := context.Background()

	tok, err := lc.Create(ctx, CreateParams{Name: "u", Type: permission.TypeCustom, Permissions: []string{"a", "b"}})
	require.NoError(t, err)

	t.Run("reconciles permission delta", func(t *testing.T) {
		got, err := lc.Update(ctx, tok.ID, UpdateParams{Permissions: []string{"b", "c", "c"}})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"b", "c"}, got.Permissions)
	})

	t.Run("unknown permission rejected", func(t *testing.T) {
		_, err := lc.Update(ctx, tok.ID, UpdateParams{Permissions: []string{"b", "zzz"}})
		require.Error(t, err)
		assert.Equal(t, "Unknown permissions provided: zzz", err.Error())

		got, _ := lc.GetByID(ctx, tok.ID)
		assert.ElementsMatch(t, []string{"b", "c"}, got.Permissions)
	})

	t.Run("lifespan patch recomputes expiry", func(t *testing.T) {
		got, err := lc.Update(ctx, tok.ID, UpdateParams{Lifespan: Some(expiry.Ptr(expiry.SevenDays))})
		require.NoError(t, err)
		require.NotNil(t, got.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *got.ExpiresAt, 2*time.Second)

		got, err = lc.Update(ctx, tok.ID, UpdateParams{Lifespan: Some[*int64](nil)})
		require.NoError(t, err)
		assert.Nil(t, got.Lifespan)
		assert.Nil(t, got.ExpiresAt)
	})

	t.Run("description only leaves expiry alone", func(t *testing.T) {
		_, err := lc.Update(ctx, tok.ID, UpdateParams{Lifespan: Some(expiry.Ptr(expiry.NinetyDays))})
		require.NoError(t, err)

		desc := "rotated quarterly"
		got, err := lc.Update(ctx, tok.ID, UpdateParams{Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, desc, got.Description)
		require.NotNil(t, got.Lifespan)
		assert.Equal(t, expiry.NinetyDays, *got.Lifespan)
	})

	t.Run("switching to read-only drops permissions", func(t *testing.T) {
		ro := permission.TypeReadOnly
		got, err := lc.Update(ctx, tok.ID, UpdateParams{Type: &ro})
		require.NoError(t, err)
		assert.Equal(t, permission.TypeReadOnly, got.Type)
		assert.Empty(t, got.Permissions)
	})

	t.Run("switching to custom requires permissions", func(t *testing.T) {
		custom := permission.TypeCustom
		_, err := lc.Update(ctx, tok.ID, UpdateParams{Type: &custom})
		require.Error(t, err)
		assert.Equal(t, "Custom tokens must reference at least one permission", err.Error())

		got, err := lc.Update(ctx, tok.ID, UpdateParams{Type: &custom, Permissions: []string{"a"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, got.Permissions)
	})
}

func TestUpdate_PartialUpdateSkipsPermissionCheck(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	settings := newSettings()

	lc := New(APITokenFamily(permission.FromKeys("legacy")), s, settings)
	tok, err := lc.Create(ctx, CreateParams{Name: "p", Type: permission.TypeCustom, Permissions: []string{"legacy"}})
	require.NoError(t, err)

	// The action disappears from the registry; renaming must still work.
	lc = New(APITokenFamily(permission.FromKeys("current")), s, settings)
	name := "renamed"
	got, err := lc.Update(ctx, tok.ID, UpdateParams{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, []string{"legacy"}, got.Permissions)
}

func TestUpdate_Errors(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t)
	ctx := context.Background()

	_, err := lc.Update(ctx, 999, UpdateParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Token not found", err.Error())

	_, err = lc.Create(ctx, CreateParams{Name: "first", Type: permission.TypeReadOnly})
	require.NoError(t, err)
	second, err := lc.Create(ctx, CreateParams{Name: "second", Type: permission.TypeReadOnly})
	require.NoError(t, err)

	taken := "first"
	_, err = lc.Update(ctx, second.ID, UpdateParams{Name: &taken})
	require.Error(t, err)
	assert.Equal(t, "Name already taken", err.Error())

	same := "second"
	_, err = lc.Update(ctx, second.ID, UpdateParams{Name: &same})
	assert.NoError(t, err)

	_, err = lc.Update(ctx, second.ID, UpdateParams{Lifespan: Some(expiry.Ptr(5))})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdate_LifespanUsesUTC(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("UTC+5", 5*60*60)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, zone)
	var saved *storage.Token
	m := &mockstore.MockStorage{
		GetTokenByIDFunc: func(ctx context.Context, family string, id int64) (*storage.Token, error) {
			return &storage.Token{ID: id, Family: family, Name: "n", Type: permission.TypeReadOnly}, nil
		},
		UpdateTokenFunc: func(ctx context.Context, tok *storage.Token) error {
			saved = tok
			return nil
		},
	}

	lc := New(APITokenFamily(nil), m, newSettings(), WithClock(func() time.Time { return now }))
	got, err := lc.Update(context.Background(), 1, UpdateParams{Lifespan: Some(expiry.Ptr(expiry.SevenDays))})
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, time.UTC, got.ExpiresAt.Location())
	assert.True(t, got.ExpiresAt.Equal(now.Add(7*24*time.Hour)))
	require.NotNil(t, saved)
	assert.Equal(t, time.UTC, saved.ExpiresAt.Location())
}

func TestRegenerate(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t)
	ctx := context.Background()

	tok, err := lc.Create(ctx, CreateParams{Name: "r", Type: permission.TypeFullAccess})
	require.NoError(t, err)

	res, err := lc.Regenerate(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, res.ID)
	assert.Len(t, res.AccessKey, 256)
	assert.NotEqual(t, tok.AccessKey, res.AccessKey)

	_, err = lc.Authenticate(ctx, tok.AccessKey)
	assert.ErrorIs(t, err, ErrInvalidToken, "old secret is invalid after regenerate")

	authed, err := lc.Authenticate(ctx, res.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, authed.ID)

	_, err = lc.Regenerate(ctx, 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "The provided token id does not exist", err.Error())
}

func TestRegenerate_OnlyReplacesSecret(t *testing.T) {
	t.Parallel()

	stale := &storage.Token{ID: 4, Family: APIToken, Name: "old-name", Type: permission.TypeReadOnly}
	var gotFamily, gotHash string
	var gotID int64
	m := &mockstore.MockStorage{
		GetTokenByIDFunc: func(ctx context.Context, family string, id int64) (*storage.Token, error) {
			return stale, nil
		},
		UpdateTokenFunc: func(ctx context.Context, t2 *storage.Token) error {
			t.Errorf("Regenerate wrote the whole row: %+v", t2)
			return nil
		},
		SetTokenSecretFunc: func(ctx context.Context, family string, id int64, accessKey, encryptedKey string) error {
			gotFamily, gotID, gotHash = family, id, accessKey
			return nil
		},
	}

	lc := New(APITokenFamily(nil), m, newSettings())
	res, err := lc.Regenerate(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, APIToken, gotFamily)
	assert.Equal(t, int64(4), gotID)
	assert.Len(t, gotHash, 128)
	assert.NotEqual(t, res.AccessKey, gotHash)

	m.SetTokenSecretFunc = func(ctx context.Context, family string, id int64, accessKey, encryptedKey string) error {
		return storage.ErrNotFound
	}
	_, err = lc.Regenerate(context.Background(), 4)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegenerate_KeepsConcurrentChanges(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t)
	ctx := context.Background()
	renamed := "after"

	tok, err := lc.Create(ctx, CreateParams{Name: "before", Type: permission.TypeReadOnly})
	require.NoError(t, err)
	_, err = lc.Authenticate(ctx, tok.AccessKey)
	require.NoError(t, err)
	_, err = lc.Update(ctx, tok.ID, UpdateParams{Name: &renamed, Lifespan: Some(expiry.Ptr(expiry.SevenDays))})
	require.NoError(t, err)

	_, err = lc.Regenerate(ctx, tok.ID)
	require.NoError(t, err)

	got, err := lc.GetByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	require.NotNil(t, got.Lifespan)
	assert.Equal(t, expiry.SevenDays, *got.Lifespan)
	assert.NotNil(t, got.ExpiresAt)
	assert.NotNil(t, got.LastUsedAt)
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	hub := events.NewHub(nil)
	var emitted []string
	hub.On("*", func(_ context.Context, e events.Event) { emitted = append(emitted, e.Name) })

	s := newStore(t)
	lc := New(APITokenFamily(permission.FromKeys("x")), s, newSettings(), WithEventBus(hub))
	ctx := context.Background()

	tok, err := lc.Create(ctx, CreateParams{Name: "gone", Type: permission.TypeCustom, Permissions: []string{"x"}})
	require.NoError(t, err)

	revoked, err := lc.Revoke(ctx, tok.ID)
	require.NoError(t, err)
	require.NotNil(t, revoked)
	assert.Equal(t, "gone", revoked.Name)
	assert.Equal(t, []string{"x"}, revoked.Permissions)

	got, err := lc.GetByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	grants, err := s.ListGrants(ctx, tok.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	again, err := lc.Revoke(ctx, 999)
	assert.NoError(t, err)
	assert.Nil(t, again)

	assert.Equal(t, []string{"api-token.create", "api-token.delete"}, emitted)
}

func TestList_OrderedByName(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t, "x")
	ctx := context.Background()

	for _, name := range []string{"zulu", "alpha", "mike"} {
		_, err := lc.Create(ctx, CreateParams{Name: name, Type: permission.TypeCustom, Permissions: []string{"x"}})
		require.NoError(t, err)
	}

	list, err := lc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "mike", list[1].Name)
	assert.Equal(t, "zulu", list[2].Name)
	for _, tok := range list {
		assert.Equal(t, []string{"x"}, tok.Permissions)
		assert.Empty(t, tok.AccessKey)
	}

	missing, err := lc.GetByName(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLifespanInvariantAcrossOperations(t *testing.T) {
	t.Parallel()

	lc, _ := newAPILifecycle(t)
	ctx := context.Background()

	for i, l := range []*int64{nil, expiry.Ptr(expiry.SevenDays), expiry.Ptr(expiry.NinetyDays)} {
		_, err := lc.Create(ctx, CreateParams{Name: string(rune('a' + i)), Type: permission.TypeReadOnly, Lifespan: l})
		require.NoError(t, err)
	}

	list, err := lc.List(ctx)
	require.NoError(t, err)
	for _, tok := range list {
		assert.Equal(t, tok.Lifespan == nil, tok.ExpiresAt == nil, "token %s", tok.Name)
		if tok.Lifespan != nil {
			want := tok.CreatedAt.Add(time.Duration(*tok.Lifespan) * time.Millisecond)
			assert.WithinDuration(t, want, *tok.ExpiresAt, 2*time.Second)
		}
	}
}

func TestTransferToken(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	lc := New(TransferTokenFamily(nil), s, newSettings())
	ctx := context.Background()

	_, err := lc.Create(ctx, CreateParams{Name: "no-perms"})
	require.Error(t, err)
	assert.Equal(t, "Missing permissions attribute for custom token", err.Error())

	_, err = lc.Create(ctx, CreateParams{Name: "bad", Permissions: []string{"push", "admin"}})
	require.Error(t, err)
	assert.Equal(t, "Unknown permissions provided: admin", err.Error())

	tok, err := lc.Create(ctx, CreateParams{Name: "sync", Type: "ignored", Permissions: []string{"push", "pull", "push"}})
	require.NoError(t, err)
	assert.Empty(t, tok.Type)
	assert.Equal(t, []string{"push", "pull"}, tok.Permissions)

	got, err := lc.Update(ctx, tok.ID, UpdateParams{Permissions: []string{"pull"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"pull"}, got.Permissions)

	// Transfer and api tokens never see each other.
	api := New(APITokenFamily(permission.FromKeys()), s, newSettings())
	other, err := api.GetByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestServiceAccountToken(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	_, err := s.CreateRole(ctx, &storage.Role{Code: "strapi-editor", Name: "Editor"})
	require.NoError(t, err)

	lc := New(ServiceAccountFamily(nil), s, newSettings())

	_, err = lc.Create(ctx, CreateParams{Name: "sa"})
	require.Error(t, err)
	assert.Equal(t, "Missing roles attribute for service account token", err.Error())

	_, err = lc.Create(ctx, CreateParams{Name: "sa", Roles: []string{}})
	require.Error(t, err)
	assert.Equal(t, "Service account tokens must reference at least one role", err.Error())

	_, err = lc.Create(ctx, CreateParams{Name: "sa", Roles: []string{"strapi-author"}})
	require.Error(t, err)
	assert.Equal(t, "Unknown roles provided: strapi-author", err.Error())

	_, err = lc.Create(ctx, CreateParams{Name: "sa", Roles: []string{"strapi-editor"}, Lifespan: expiry.Ptr(-1)})
	require.Error(t, err)
	assert.Equal(t, "lifespan must be a positive number or null", err.Error())

	tok, err := lc.Create(ctx, CreateParams{Name: "sa", Roles: []string{"strapi-editor"}, Lifespan: expiry.Ptr(12345)})
	require.NoError(t, err)
	assert.Equal(t, []string{"strapi-editor"}, tok.Roles)
	assert.Nil(t, tok.Permissions)
	require.NotNil(t, tok.ExpiresAt)

	stored, err := s.GetTokenByID(ctx, ServiceAccountToken, tok.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^v1:[0-9a-f]{32}:[0-9a-f]+:[0-9a-f]{32}$`, stored.EncryptedKey)

	revealed, ok, err := lc.RevealAccessKey(ctx, tok.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tok.AccessKey, revealed)

	res, err := lc.Regenerate(ctx, tok.ID)
	require.NoError(t, err)
	revealed, ok, err = lc.RevealAccessKey(ctx, tok.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, res.AccessKey, revealed)

	_, ok, err = lc.RevealAccessKey(ctx, 999)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceAccountToken_UpdateRolesFromStore(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	for _, code := range []string{"strapi-editor", "strapi-author"} {
		_, err := s.CreateRole(ctx, &storage.Role{Code: code, Name: code})
		require.NoError(t, err)
	}
	lc := New(ServiceAccountFamily(nil), s, newSettings(), WithLogger(slog.New(slog.DiscardHandler)))

	tok, err := lc.Create(ctx, CreateParams{Name: "sa", Roles: []string{"strapi-editor"}})
	require.NoError(t, err)

	updated, err := lc.Update(ctx, tok.ID, UpdateParams{Roles: []string{"strapi-author", "strapi-editor"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"strapi-author", "strapi-editor"}, updated.Roles)

	_, err = lc.Update(ctx, tok.ID, UpdateParams{Roles: []string{"strapi-admin"}})
	require.Error(t, err)
	assert.Equal(t, "Unknown roles provided: strapi-admin", err.Error())
}

func TestServiceAccountToken_RotatedKeyDegrades(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	settings := newSettings()
	ctx := context.Background()
	lc := New(ServiceAccountFamily(permission.FromKeys("ops")), s, settings, WithLogger(slog.New(slog.DiscardHandler)))

	tok, err := lc.Create(ctx, CreateParams{Name: "sa", Roles: []string{"ops"}})
	require.NoError(t, err)

	settings.Set(config.EncryptionKeyPath, "rotated")
	_, ok, err := lc.RevealAccessKey(ctx, tok.ID)
	assert.NoError(t, err)
	assert.False(t, ok)

	// Authentication only depends on the salt.
	_, err = lc.Authenticate(ctx, tok.AccessKey)
	assert.NoError(t, err)
}

func TestServiceAccountToken_NoEncryptionKey(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	settings := config.NewMemoryStore(map[string]any{config.ServiceAccountSaltPath: "salt"})
	lc := New(ServiceAccountFamily(permission.FromKeys("ops")), s, settings, WithLogger(slog.New(slog.DiscardHandler)))

	tok, err := lc.Create(context.Background(), CreateParams{Name: "sa", Roles: []string{"ops"}})
	require.NoError(t, err)

	stored, err := s.GetTokenByID(context.Background(), ServiceAccountToken, tok.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.EncryptedKey)
}

func TestCreate_MissingSaltFailsBeforeWriting(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	lc := New(APITokenFamily(permission.FromKeys()), s, config.NewMemoryStore(nil))

	_, err := lc.Create(context.Background(), CreateParams{Name: "n", Type: permission.TypeReadOnly})
	assert.ErrorIs(t, err, apperr.ErrConfig)

	list, err := lc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCheckSalt(t *testing.T) {
	lc := New(TransferTokenFamily(nil), &mockstore.MockStorage{}, config.NewMemoryStore(nil),
		WithLogger(slog.New(slog.DiscardHandler)))

	t.Setenv("TRANSFER_TOKEN_SALT", "")
	assert.ErrorIs(t, lc.CheckSalt(), apperr.ErrConfig)

	t.Setenv("TRANSFER_TOKEN_SALT", "legacy")
	assert.NoError(t, lc.CheckSalt())
}

func TestUpdate_StoreFailurePropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	m := &mockstore.MockStorage{
		GetTokenByIDFunc: func(ctx context.Context, family string, id int64) (*storage.Token, error) {
			return &storage.Token{ID: id, Family: family, Name: "n", Type: permission.TypeCustom, Grants: []string{"a"}}, nil
		},
		AddGrantsFunc: func(ctx context.Context, tokenID int64, values []string) error {
			return boom
		},
	}
	var removedBeforeAdd bool
	m.RemoveGrantsFunc = func(ctx context.Context, tokenID int64, values []string) error {
		removedBeforeAdd = true
		assert.Equal(t, []string{"a"}, values)
		return nil
	}

	lc := New(APITokenFamily(permission.FromKeys("a", "b")), m, newSettings())
	_, err := lc.Update(context.Background(), 1, UpdateParams{Permissions: []string{"b"}})
	assert.ErrorIs(t, err, boom)
	assert.True(t, removedBeforeAdd)
}
