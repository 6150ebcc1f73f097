// Package auth verifies admin credentials and drives the password reset,
// registration and first-admin bootstrap flows. It also carries the bearer
// token middleware used by the HTTP layer.
package auth

import (
	"fmt"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/sipico/admin-auth/internal/apperr"
)

// PasswordCost is the bcrypt cost used for admin passwords.
const PasswordCost = 10

const (
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordLength = 72
)

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ValidatePassword reports whether password matches hash. The comparison
// runs in constant time.
func ValidatePassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// burnCompare spends the time of a real comparison for unknown accounts.
func burnCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), PasswordCost) //nolint:errcheck
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password)) //nolint:errcheck
}

// ValidatePasswordPolicy checks length and character classes of a new password.
func ValidatePasswordPolicy(password string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return apperr.Validation("password must be less than %d bytes", maxPasswordLength+1)
	}

	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case !lower:
		return apperr.Validation("password must contain at least one lowercase character")
	case !upper:
		return apperr.Validation("password must contain at least one uppercase character")
	case !digit:
		return apperr.Validation("password must contain at least one number")
	}
	return nil
}
