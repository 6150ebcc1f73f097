package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Well-known settings paths.
const (
	APITokenSaltPath        = "admin.apiToken.salt"
	TransferTokenSaltPath   = "admin.transfer.token.salt"
	ServiceAccountSaltPath  = "admin.serviceAccount.token.salt"
	EncryptionKeyPath       = "admin.secrets.encryptionKey"
	AbsoluteURLPath         = "admin.absoluteUrl"
	ForgotPasswordFromPath  = "admin.forgotPassword.from"
	ForgotPasswordReplyPath = "admin.forgotPassword.replyTo"
	ForgotPasswordTemplate  = "admin.forgotPassword.emailTemplate"
)

// envPrefix namespaces environment overrides, e.g. ADMIN_AUTH_ADMIN_APITOKEN_SALT.
const envPrefix = "ADMIN_AUTH"

// Store is a path-addressed settings store. Values are looked up on every
// call, so a Set is visible to the next reader.
type Store struct {
	v *viper.Viper
}

// NewStore creates a Store. When file is non-empty it is read as YAML.
func NewStore(file string) (*Store, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	return &Store{v: v}, nil
}

// NewMemoryStore creates a Store seeded with values and no file or env backing
// beyond the automatic env lookup.
func NewMemoryStore(values map[string]any) *Store {
	s, _ := NewStore("") //nolint:errcheck // no file, cannot fail
	for k, val := range values {
		s.Set(k, val)
	}
	return s
}

// Get returns the value at path, or def when unset.
func (s *Store) Get(path string, def any) any {
	if !s.v.IsSet(path) {
		return def
	}
	return s.v.Get(path)
}

// GetString returns the string value at path, or def when unset or empty.
func (s *Store) GetString(path, def string) string {
	if !s.v.IsSet(path) {
		return def
	}
	if val := s.v.GetString(path); val != "" {
		return val
	}
	return def
}

// Set overrides the value at path.
func (s *Store) Set(path string, value any) {
	s.v.Set(path, value)
}
