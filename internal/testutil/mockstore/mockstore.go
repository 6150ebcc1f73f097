// Package mockstore provides a configurable mock implementation of storage.Store for testing.
//
// The MockStorage type uses function fields for each method, allowing tests to customize behavior
// as needed while providing sensible defaults for methods that aren't customized.
package mockstore

import (
	"context"
	"time"

	"github.com/sipico/admin-auth/internal/storage"
)

// MockStorage is a configurable mock implementation of storage.Store.
// If a function field is nil, the method returns a sensible default value.
type MockStorage struct {
	// Token operations
	CreateTokenFunc         func(ctx context.Context, t *storage.Token) (*storage.Token, error)
	GetTokenByIDFunc        func(ctx context.Context, family string, id int64) (*storage.Token, error)
	GetTokenByNameFunc      func(ctx context.Context, family, name string) (*storage.Token, error)
	GetTokenByAccessKeyFunc func(ctx context.Context, family, accessKey string) (*storage.Token, error)
	ListTokensFunc          func(ctx context.Context, family string) ([]*storage.Token, error)
	UpdateTokenFunc         func(ctx context.Context, t *storage.Token) error
	SetTokenSecretFunc      func(ctx context.Context, family string, id int64, accessKey, encryptedKey string) error
	TouchTokenFunc          func(ctx context.Context, id int64, at time.Time) error
	DeleteTokenFunc         func(ctx context.Context, family string, id int64) error
	CountExpiredTokensFunc  func(ctx context.Context, family string, now time.Time) (int, error)

	// Grant operations
	ListGrantsFunc   func(ctx context.Context, tokenID int64) ([]string, error)
	AddGrantsFunc    func(ctx context.Context, tokenID int64, values []string) error
	RemoveGrantsFunc func(ctx context.Context, tokenID int64, values []string) error
	ClearGrantsFunc  func(ctx context.Context, tokenID int64) error

	// User and role operations
	CreateUserFunc                 func(ctx context.Context, u *storage.User) (*storage.User, error)
	GetUserByIDFunc                func(ctx context.Context, id int64) (*storage.User, error)
	GetUserByEmailFunc             func(ctx context.Context, email string) (*storage.User, error)
	GetUserByResetTokenFunc        func(ctx context.Context, token string) (*storage.User, error)
	GetUserByRegistrationTokenFunc func(ctx context.Context, token string) (*storage.User, error)
	UpdateUserFunc                 func(ctx context.Context, u *storage.User) error
	SetUserRolesFunc               func(ctx context.Context, userID int64, roleIDs []int64) error
	DeleteUserFunc                 func(ctx context.Context, id int64) error
	CountUsersFunc                 func(ctx context.Context) (int, error)
	CountActiveUsersWithRoleFunc   func(ctx context.Context, code string) (int, error)
	CreateRoleFunc                 func(ctx context.Context, r *storage.Role) (*storage.Role, error)
	GetRoleByCodeFunc              func(ctx context.Context, code string) (*storage.Role, error)
	ListRolesFunc                  func(ctx context.Context) ([]*storage.Role, error)

	// Transactions and lifecycle
	WithTxFunc func(ctx context.Context, fn func(storage.Store) error) error
	PingFunc   func(ctx context.Context) error
	CloseFunc  func() error
}

var _ storage.Store = (*MockStorage)(nil)

// CreateToken stores a token.
func (m *MockStorage) CreateToken(ctx context.Context, t *storage.Token) (*storage.Token, error) {
	if m.CreateTokenFunc != nil {
		return m.CreateTokenFunc(ctx, t)
	}
	t.ID = 1
	return t, nil
}

// GetTokenByID retrieves a token by ID.
func (m *MockStorage) GetTokenByID(ctx context.Context, family string, id int64) (*storage.Token, error) {
	if m.GetTokenByIDFunc != nil {
		return m.GetTokenByIDFunc(ctx, family, id)
	}
	return nil, storage.ErrNotFound
}

// GetTokenByName retrieves a token by name.
func (m *MockStorage) GetTokenByName(ctx context.Context, family, name string) (*storage.Token, error) {
	if m.GetTokenByNameFunc != nil {
		return m.GetTokenByNameFunc(ctx, family, name)
	}
	return nil, storage.ErrNotFound
}

// GetTokenByAccessKey retrieves a token by its hash.
func (m *MockStorage) GetTokenByAccessKey(ctx context.Context, family, accessKey string) (*storage.Token, error) {
	if m.GetTokenByAccessKeyFunc != nil {
		return m.GetTokenByAccessKeyFunc(ctx, family, accessKey)
	}
	return nil, storage.ErrNotFound
}

// ListTokens retrieves all tokens of a family.
func (m *MockStorage) ListTokens(ctx context.Context, family string) ([]*storage.Token, error) {
	if m.ListTokensFunc != nil {
		return m.ListTokensFunc(ctx, family)
	}
	return []*storage.Token{}, nil
}

// UpdateToken writes a token.
func (m *MockStorage) UpdateToken(ctx context.Context, t *storage.Token) error {
	if m.UpdateTokenFunc != nil {
		return m.UpdateTokenFunc(ctx, t)
	}
	return nil
}

// SetTokenSecret replaces a token secret.
func (m *MockStorage) SetTokenSecret(ctx context.Context, family string, id int64, accessKey, encryptedKey string) error {
	if m.SetTokenSecretFunc != nil {
		return m.SetTokenSecretFunc(ctx, family, id, accessKey, encryptedKey)
	}
	return nil
}

// TouchToken records token use.
func (m *MockStorage) TouchToken(ctx context.Context, id int64, at time.Time) error {
	if m.TouchTokenFunc != nil {
		return m.TouchTokenFunc(ctx, id, at)
	}
	return nil
}

// DeleteToken deletes a token.
func (m *MockStorage) DeleteToken(ctx context.Context, family string, id int64) error {
	if m.DeleteTokenFunc != nil {
		return m.DeleteTokenFunc(ctx, family, id)
	}
	return nil
}

// CountExpiredTokens counts expired tokens of a family.
func (m *MockStorage) CountExpiredTokens(ctx context.Context, family string, now time.Time) (int, error) {
	if m.CountExpiredTokensFunc != nil {
		return m.CountExpiredTokensFunc(ctx, family, now)
	}
	return 0, nil
}

// ListGrants lists the grants of a token.
func (m *MockStorage) ListGrants(ctx context.Context, tokenID int64) ([]string, error) {
	if m.ListGrantsFunc != nil {
		return m.ListGrantsFunc(ctx, tokenID)
	}
	return []string{}, nil
}

// AddGrants links grants to a token.
func (m *MockStorage) AddGrants(ctx context.Context, tokenID int64, values []string) error {
	if m.AddGrantsFunc != nil {
		return m.AddGrantsFunc(ctx, tokenID, values)
	}
	return nil
}

// RemoveGrants unlinks grants from a token.
func (m *MockStorage) RemoveGrants(ctx context.Context, tokenID int64, values []string) error {
	if m.RemoveGrantsFunc != nil {
		return m.RemoveGrantsFunc(ctx, tokenID, values)
	}
	return nil
}

// ClearGrants removes all grants of a token.
func (m *MockStorage) ClearGrants(ctx context.Context, tokenID int64) error {
	if m.ClearGrantsFunc != nil {
		return m.ClearGrantsFunc(ctx, tokenID)
	}
	return nil
}

// CreateUser stores a user.
func (m *MockStorage) CreateUser(ctx context.Context, u *storage.User) (*storage.User, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, u)
	}
	u.ID = 1
	return u, nil
}

// GetUserByID retrieves a user by ID.
func (m *MockStorage) GetUserByID(ctx context.Context, id int64) (*storage.User, error) {
	if m.GetUserByIDFunc != nil {
		return m.GetUserByIDFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

// GetUserByEmail retrieves a user by email.
func (m *MockStorage) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	if m.GetUserByEmailFunc != nil {
		return m.GetUserByEmailFunc(ctx, email)
	}
	return nil, storage.ErrNotFound
}

// GetUserByResetToken retrieves a user by reset-password token.
func (m *MockStorage) GetUserByResetToken(ctx context.Context, token string) (*storage.User, error) {
	if m.GetUserByResetTokenFunc != nil {
		return m.GetUserByResetTokenFunc(ctx, token)
	}
	return nil, storage.ErrNotFound
}

// GetUserByRegistrationToken retrieves a user by registration token.
func (m *MockStorage) GetUserByRegistrationToken(ctx context.Context, token string) (*storage.User, error) {
	if m.GetUserByRegistrationTokenFunc != nil {
		return m.GetUserByRegistrationTokenFunc(ctx, token)
	}
	return nil, storage.ErrNotFound
}

// UpdateUser writes a user.
func (m *MockStorage) UpdateUser(ctx context.Context, u *storage.User) error {
	if m.UpdateUserFunc != nil {
		return m.UpdateUserFunc(ctx, u)
	}
	return nil
}

// SetUserRoles replaces a user's roles.
func (m *MockStorage) SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if m.SetUserRolesFunc != nil {
		return m.SetUserRolesFunc(ctx, userID, roleIDs)
	}
	return nil
}

// DeleteUser deletes a user.
func (m *MockStorage) DeleteUser(ctx context.Context, id int64) error {
	if m.DeleteUserFunc != nil {
		return m.DeleteUserFunc(ctx, id)
	}
	return nil
}

// CountUsers counts users.
func (m *MockStorage) CountUsers(ctx context.Context) (int, error) {
	if m.CountUsersFunc != nil {
		return m.CountUsersFunc(ctx)
	}
	return 0, nil
}

// CountActiveUsersWithRole counts active users holding a role.
func (m *MockStorage) CountActiveUsersWithRole(ctx context.Context, code string) (int, error) {
	if m.CountActiveUsersWithRoleFunc != nil {
		return m.CountActiveUsersWithRoleFunc(ctx, code)
	}
	return 0, nil
}

// CreateRole stores a role.
func (m *MockStorage) CreateRole(ctx context.Context, r *storage.Role) (*storage.Role, error) {
	if m.CreateRoleFunc != nil {
		return m.CreateRoleFunc(ctx, r)
	}
	r.ID = 1
	return r, nil
}

// GetRoleByCode retrieves a role by code.
func (m *MockStorage) GetRoleByCode(ctx context.Context, code string) (*storage.Role, error) {
	if m.GetRoleByCodeFunc != nil {
		return m.GetRoleByCodeFunc(ctx, code)
	}
	return nil, storage.ErrNotFound
}

// ListRoles lists roles.
func (m *MockStorage) ListRoles(ctx context.Context) ([]*storage.Role, error) {
	if m.ListRolesFunc != nil {
		return m.ListRolesFunc(ctx)
	}
	return []*storage.Role{}, nil
}

// WithTx runs fn against the mock itself unless overridden.
func (m *MockStorage) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	return fn(m)
}

// Ping verifies connectivity.
func (m *MockStorage) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Close closes the storage connection.
func (m *MockStorage) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
