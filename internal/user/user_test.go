package user

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/admin-auth/internal/apperr"
	"github.com/sipico/admin-auth/internal/auth"
	"github.com/sipico/admin-auth/internal/events"
	"github.com/sipico/admin-auth/internal/storage"
	"github.com/sipico/admin-auth/internal/testutil/mockstore"
)

type fixture struct {
	store  *storage.SQLiteStorage
	svc    *Service
	super  *storage.Role
	editor *storage.Role
	events []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	super, err := s.CreateRole(ctx, &storage.Role{Code: storage.SuperAdminCode, Name: "Super Admin"})
	require.NoError(t, err)
	editor, err := s.CreateRole(ctx, &storage.Role{Code: "strapi-editor", Name: "Editor"})
	require.NoError(t, err)

	f := &fixture{store: s, super: super, editor: editor}
	hub := events.NewHub(nil)
	hub.On("*", func(_ context.Context, e events.Event) { f.events = append(f.events, e.Name) })
	f.svc = NewService(s, WithEventBus(hub), WithLogger(slog.New(slog.DiscardHandler)))
	return f
}

func (f *fixture) admin(t *testing.T, email string, roles ...int64) *storage.User {
	t.Helper()
	u, err := f.svc.Create(context.Background(), CreateParams{
		Email:     email,
		Firstname: "Test",
		Password:  "Secret123",
		IsActive:  true,
		Roles:     roles,
	})
	require.NoError(t, err)
	return u
}

func TestCreate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	u := f.admin(t, " Ada@Example.com ", f.editor.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.True(t, u.IsActive)
	assert.Nil(t, u.RegistrationToken)
	assert.True(t, auth.ValidatePassword("Secret123", u.Password))

	stored, err := f.svc.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasRole("strapi-editor"))

	_, err = f.svc.Create(ctx, CreateParams{Email: "ada@example.com", Password: "Secret123"})
	require.Error(t, err)
	assert.Equal(t, "Email already taken", err.Error())

	_, err = f.svc.Create(ctx, CreateParams{Email: "bad", Password: "Secret123"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Create(ctx, CreateParams{Email: "weak@example.com", Password: "weak"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Create(ctx, CreateParams{Email: "x@example.com", Password: "Secret123", Roles: []int64{999}})
	require.Error(t, err)
	assert.Equal(t, "Some roles do not exist", err.Error())

	assert.Equal(t, []string{events.UserCreate}, f.events)
}

func TestCreate_Invite(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Create(ctx, CreateParams{Email: "invitee@example.com", IsActive: true, Roles: []int64{f.editor.ID}})
	require.NoError(t, err)
	assert.False(t, u.IsActive, "invited users stay inactive until they register")
	assert.Empty(t, u.Password)
	require.NotNil(t, u.RegistrationToken)
	assert.Len(t, *u.RegistrationToken, 40)

	found, err := f.store.GetUserByRegistrationToken(ctx, *u.RegistrationToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
}

func TestDeleteByID_SuperAdminGuard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	first := f.admin(t, "first@example.com", f.super.ID)
	second := f.admin(t, "second@example.com", f.super.ID)

	n, err := f.svc.CountActiveSuperAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deleted, err := f.svc.DeleteByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, first.ID, deleted.ID)

	_, err = f.svc.DeleteByID(ctx, second.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, MsgLastSuperAdmin, err.Error())

	still, err := f.svc.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)

	missing, err := f.svc.DeleteByID(ctx, 999)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteByID_InactiveSuperAdminIsNotGuarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.admin(t, "active@example.com", f.super.ID)
	inactive, err := f.svc.Create(ctx, CreateParams{Email: "off@example.com", Password: "Secret123", Roles: []int64{f.super.ID}})
	require.NoError(t, err)
	require.False(t, inactive.IsActive)

	_, err = f.svc.DeleteByID(ctx, inactive.ID)
	assert.NoError(t, err)
}

func TestUpdate_SuperAdminGuard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	only := f.admin(t, "only@example.com", f.super.ID)
	off := false

	_, err := f.svc.Update(ctx, only.ID, UpdateParams{IsActive: &off})
	require.Error(t, err)
	assert.Equal(t, MsgLastSuperAdmin, err.Error())

	_, err = f.svc.Update(ctx, only.ID, UpdateParams{Roles: []int64{f.editor.ID}})
	require.Error(t, err)
	assert.Equal(t, MsgLastSuperAdmin, err.Error())

	// Keeping the role while adding another is fine.
	u, err := f.svc.Update(ctx, only.ID, UpdateParams{Roles: []int64{f.editor.ID, f.super.ID}})
	require.NoError(t, err)
	assert.Len(t, u.Roles, 2)

	other := f.admin(t, "other@example.com", f.super.ID)
	u, err = f.svc.Update(ctx, only.ID, UpdateParams{IsActive: &off})
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	_, err = f.svc.Update(ctx, other.ID, UpdateParams{Roles: []int64{f.editor.ID}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdate_Fields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.admin(t, "taken@example.com")
	u := f.admin(t, "ada@example.com", f.editor.ID)

	name := "Augusta"
	pw := "NewSecret1"
	got, err := f.svc.Update(ctx, u.ID, UpdateParams{Firstname: &name, Password: &pw})
	require.NoError(t, err)
	assert.Equal(t, "Augusta", got.Firstname)
	assert.True(t, auth.ValidatePassword(pw, got.Password))
	assert.True(t, got.HasRole("strapi-editor"), "roles untouched when not supplied")

	taken := "TAKEN@example.com"
	_, err = f.svc.Update(ctx, u.ID, UpdateParams{Email: &taken})
	require.Error(t, err)
	assert.Equal(t, "Email already taken", err.Error())

	weak := "weak"
	_, err = f.svc.Update(ctx, u.ID, UpdateParams{Password: &weak})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Update(ctx, 999, UpdateParams{Firstname: &name})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteByIDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	a := f.admin(t, "a@example.com", f.super.ID)
	b := f.admin(t, "b@example.com", f.super.ID)
	c := f.admin(t, "c@example.com", f.editor.ID)

	_, err := f.svc.DeleteByIDs(ctx, []int64{a.ID, b.ID, c.ID})
	require.Error(t, err)
	assert.Equal(t, MsgLastSuperAdmin, err.Error())

	remaining, err := f.store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining, "failed batch deletes nothing")

	deleted, err := f.svc.DeleteByIDs(ctx, []int64{a.ID, c.ID, c.ID, 999})
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	remaining, err = f.store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestDeleteByID_StoreFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk I/O error")
	m := &mockstore.MockStorage{
		GetUserByIDFunc: func(ctx context.Context, id int64) (*storage.User, error) {
			return &storage.User{ID: id, IsActive: true}, nil
		},
		DeleteUserFunc: func(ctx context.Context, id int64) error { return boom },
	}

	_, err := NewService(m).DeleteByID(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestFindByID_Missing(t *testing.T) {
	t.Parallel()

	u, err := NewService(&mockstore.MockStorage{}).FindByID(context.Background(), 42)
	assert.NoError(t, err)
	assert.Nil(t, u)
}
