// Package secret generates bearer secrets, hashes them for storage and
// encrypts values that must stay recoverable.
package secret

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/sipico/admin-auth/internal/apperr"
)

const (
	secretBytes      = 128
	shortSecretBytes = 20
)

// ConfigStore is the subset of the settings store used for salts and keys.
type ConfigStore interface {
	GetString(path, def string) string
	Set(path string, value any)
}

// GenerateSecret returns 128 random bytes, hex encoded (256 characters).
func GenerateSecret() (string, error) {
	return randomHex(secretBytes)
}

// GenerateShortSecret returns 20 random bytes, hex encoded (40 characters).
// Used for registration and reset-password tokens.
func GenerateShortSecret() (string, error) {
	return randomHex(shortSecretBytes)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hasher computes the HMAC-SHA512 digest stored in place of a secret.
// The salt is read from Config on every call.
type Hasher struct {
	Config   ConfigStore
	SaltPath string
}

// Hash returns the 128-character hex digest of secret.
func (h Hasher) Hash(secret string) (string, error) {
	salt := h.Config.GetString(h.SaltPath, "")
	if salt == "" {
		return "", apperr.Config("Missing %s. Please set it in the admin configuration.", h.SaltPath)
	}
	mac := hmac.New(sha512.New, []byte(salt))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// SaltSpec names where a token family finds its salt.
type SaltSpec struct {
	// Family is used in log and error messages, e.g. "api-token".
	Family string
	// Path is the settings path, e.g. admin.apiToken.salt.
	Path string
	// LegacyEnv is the deprecated environment variable, empty when none.
	LegacyEnv string
}

// CheckSaltIsDefined makes sure a salt is configured for spec. A value found
// only in the deprecated environment variable is copied into cfg with a warning.
func CheckSaltIsDefined(cfg ConfigStore, spec SaltSpec, logger *slog.Logger) error {
	if cfg.GetString(spec.Path, "") != "" {
		return nil
	}

	if spec.LegacyEnv != "" {
		if v := os.Getenv(spec.LegacyEnv); v != "" {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("deprecated salt environment variable in use",
				"family", spec.Family,
				"env", spec.LegacyEnv,
				"path", spec.Path,
			)
			cfg.Set(spec.Path, v)
			return nil
		}
	}

	return apperr.Config("Missing %s. Please set %s in the admin configuration before starting the %s service.",
		spec.Path, spec.Path, spec.Family)
}
