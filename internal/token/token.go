// Package token manages the lifecycle of api, transfer and service-account
// tokens: creation, update, secret regeneration, revocation and lookup.
package token

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sipico/admin-auth/internal/storage"
)

var (
	// ErrInvalidToken is returned by Authenticate for an unknown secret.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned by Authenticate for a token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Token is the caller-facing view of a stored token. AccessKey carries the
// plaintext secret only in the results of Create; it is empty everywhere else.
type Token struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        string     `json:"type,omitempty"`
	AccessKey   string     `json:"accessKey,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt"`
	Lifespan    *int64     `json:"lifespan"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Permissions []string   `json:"-"`
	Roles       []string   `json:"-"`

	// grant selects the attribute written by MarshalJSON.
	grant GrantKind
}

// MarshalJSON writes the family's grant attribute, permissions or roles,
// always as an array.
func (t Token) MarshalJSON() ([]byte, error) {
	type fields Token
	out := struct {
		fields
		Permissions *[]string `json:"permissions,omitempty"`
		Roles       *[]string `json:"roles,omitempty"`
	}{fields: fields(t)}

	grant := t.grant
	if grant == "" {
		grant = GrantPermissions
		if t.Roles != nil && t.Permissions == nil {
			grant = GrantRoles
		}
	}
	if grant == GrantRoles {
		roles := nonNil(t.Roles)
		out.Roles = &roles
	} else {
		perms := nonNil(t.Permissions)
		out.Permissions = &perms
	}
	return json.Marshal(out)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Regenerated is the result of Regenerate.
type Regenerated struct {
	ID        int64  `json:"id"`
	AccessKey string `json:"accessKey"`
}

// CreateParams are the attributes of a new token. A nil Permissions or Roles
// slice means the attribute was not supplied.
type CreateParams struct {
	Name        string
	Description string
	Type        string
	Lifespan    *int64
	Permissions []string
	Roles       []string
}

// Optional is a patch field that distinguishes "not supplied" from a nil value.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a supplied Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UpdateParams is a partial update. Nil pointers and slices are left untouched.
type UpdateParams struct {
	Name        *string
	Description *string
	Type        *string
	Lifespan    Optional[*int64]
	Permissions []string
	Roles       []string
}

func (f Family) view(t *storage.Token) *Token {
	v := &Token{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Type:        t.Type,
		LastUsedAt:  t.LastUsedAt,
		Lifespan:    t.Lifespan,
		ExpiresAt:   t.ExpiresAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		grant:       f.Grant,
	}
	grants := t.Grants
	if grants == nil {
		grants = []string{}
	}
	if f.Grant == GrantRoles {
		v.Roles = grants
	} else {
		v.Permissions = grants
	}
	return v
}

// grantsOf picks the grant attribute relevant to the family.
func (f Family) grantsOf(permissions, roles []string) []string {
	if f.Grant == GrantRoles {
		return roles
	}
	return permissions
}
