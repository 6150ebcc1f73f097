package storage

import "time"

// Token is a stored api, transfer or service-account token.
type Token struct {
	ID          int64
	Family      string
	Name        string
	Description string
	// Type is read-only, full-access or custom; empty for untyped families.
	Type string
	// AccessKey is the salted hash of the secret, never the plaintext.
	AccessKey string
	// EncryptedKey is a recoverable ciphertext of the secret, empty when not kept.
	EncryptedKey string
	LastUsedAt   *time.Time
	// Lifespan is in milliseconds; nil when the token never expires.
	Lifespan  *int64
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	// Grants holds permission action ids or role codes, depending on the family.
	Grants []string
}

// SuperAdminCode is the code of the role that may manage every admin feature.
const SuperAdminCode = "strapi-super-admin"

// Role is an admin role.
type Role struct {
	ID          int64
	Code        string
	Name        string
	Description string
}

// User is an admin panel user. Password holds the bcrypt hash and is empty
// for invited users who have not registered yet.
type User struct {
	ID                 int64
	Firstname          string
	Lastname           string
	Username           string
	Email              string
	Password           string
	IsActive           bool
	Blocked            bool
	ResetPasswordToken *string
	RegistrationToken  *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Roles              []Role
}

// HasRole reports whether u holds the role with code.
func (u *User) HasRole(code string) bool {
	for _, r := range u.Roles {
		if r.Code == code {
			return true
		}
	}
	return false
}
