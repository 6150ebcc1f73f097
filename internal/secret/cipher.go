package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Version is the only ciphertext format produced and accepted.
const Version = "v1"

const (
	ivSize  = 16
	tagSize = 16
)

var (
	// ErrMalformedCiphertext is returned when a value has too few segments.
	ErrMalformedCiphertext = errors.New("invalid encrypted value format")

	// ErrUnsupportedVersion is returned for a version prefix other than v1.
	ErrUnsupportedVersion = errors.New("unsupported encryption version")
)

// Cipher encrypts values with AES-256-GCM using the SHA-256 digest of the key
// configured at KeyPath. The key is read on every call.
//
// A missing key never fails a request: both directions report ok=false and log
// a warning instead.
type Cipher struct {
	Config  ConfigStore
	KeyPath string
	Logger  *slog.Logger
}

func (c Cipher) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Cipher) aead() (cipher.AEAD, bool) {
	raw := c.Config.GetString(c.KeyPath, "")
	if raw == "" {
		c.logger().Warn("encryption key is not configured", "path", c.KeyPath)
		return nil, false
	}
	key := sha256.Sum256([]byte(raw))
	block, _ := aes.NewCipher(key[:])                   //nolint:errcheck // 32-byte key
	gcm, _ := cipher.NewGCMWithNonceSize(block, ivSize) //nolint:errcheck // fixed nonce size
	return gcm, true
}

// Encrypt returns "v1:ivHex:cipherHex:tagHex". ok is false when no key is configured.
func (c Cipher) Encrypt(plaintext string) (string, bool, error) {
	gcm, ok := c.aead()
	if !ok {
		return "", false, nil
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", false, fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		Version,
		hex.EncodeToString(iv),
		hex.EncodeToString(ct),
		hex.EncodeToString(tag),
	}, ":"), true, nil
}

// Decrypt reverses Encrypt. A value with fewer than three segments or an
// unknown version is an error; a missing key, a wrong key or tampered data
// yields ok=false with a logged warning.
func (c Cipher) Decrypt(value string) (string, bool, error) {
	parts := strings.Split(value, ":")
	if len(parts) < 3 {
		return "", false, ErrMalformedCiphertext
	}
	if parts[0] != Version {
		return "", false, fmt.Errorf("%w: %s", ErrUnsupportedVersion, parts[0])
	}

	gcm, ok := c.aead()
	if !ok {
		return "", false, nil
	}

	if len(parts) != 4 {
		c.logger().Warn("failed to decrypt value", "reason", "missing auth tag")
		return "", false, nil
	}

	iv, errIV := hex.DecodeString(parts[1])
	ct, errCT := hex.DecodeString(parts[2])
	tag, errTag := hex.DecodeString(parts[3])
	if errIV != nil || errCT != nil || errTag != nil || len(iv) != ivSize || len(tag) != tagSize {
		c.logger().Warn("failed to decrypt value", "reason", "invalid encoding")
		return "", false, nil
	}

	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		c.logger().Warn("failed to decrypt value", "reason", "authentication failed")
		return "", false, nil
	}
	return string(plaintext), true, nil
}
