// Package storage persists tokens, grants and admin users in SQLite.
package storage

import (
	"context"
	"database/sql"
	"time"
)

// Store is the persistence delegate used by the admin services.
type Store interface {
	// Tokens
	CreateToken(ctx context.Context, t *Token) (*Token, error)
	GetTokenByID(ctx context.Context, family string, id int64) (*Token, error)
	GetTokenByName(ctx context.Context, family, name string) (*Token, error)
	GetTokenByAccessKey(ctx context.Context, family, accessKey string) (*Token, error)
	ListTokens(ctx context.Context, family string) ([]*Token, error)
	UpdateToken(ctx context.Context, t *Token) error
	SetTokenSecret(ctx context.Context, family string, id int64, accessKey, encryptedKey string) error
	TouchToken(ctx context.Context, id int64, at time.Time) error
	DeleteToken(ctx context.Context, family string, id int64) error
	CountExpiredTokens(ctx context.Context, family string, now time.Time) (int, error)

	// Grants
	ListGrants(ctx context.Context, tokenID int64) ([]string, error)
	AddGrants(ctx context.Context, tokenID int64, values []string) error
	RemoveGrants(ctx context.Context, tokenID int64, values []string) error
	ClearGrants(ctx context.Context, tokenID int64) error

	// Users and roles
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByResetToken(ctx context.Context, token string) (*User, error)
	GetUserByRegistrationToken(ctx context.Context, token string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int, error)
	CountActiveUsersWithRole(ctx context.Context, code string) (int, error)
	CreateRole(ctx context.Context, r *Role) (*Role, error)
	GetRoleByCode(ctx context.Context, code string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)

	// WithTx runs fn against a Store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
