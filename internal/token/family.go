package token

import (
	"github.com/sipico/admin-auth/internal/config"
	"github.com/sipico/admin-auth/internal/expiry"
	"github.com/sipico/admin-auth/internal/permission"
	"github.com/sipico/admin-auth/internal/secret"
)

// Family names.
const (
	APIToken            = "api-token"
	TransferToken       = "transfer-token"
	ServiceAccountToken = "service-account-token"
)

// GrantKind names what a family's grants refer to.
type GrantKind string

const (
	// GrantPermissions grants action identifiers from a permission registry.
	GrantPermissions GrantKind = "permissions"
	// GrantRoles grants admin role codes.
	GrantRoles GrantKind = "roles"
)

// TransferActions are the actions a transfer token may be granted.
var TransferActions = permission.FromKeys("push", "pull")

// Family describes one kind of token handled by a Lifecycle.
type Family struct {
	Name      string
	Salt      secret.SaltSpec
	Lifespans expiry.Policy
	// Typed families accept read-only, full-access and custom types; untyped
	// families always behave as custom.
	Typed bool
	Grant GrantKind
	// Encrypt keeps a recoverable ciphertext of the secret next to its hash.
	Encrypt bool
	// Registry lists valid grants. For GrantRoles a nil Registry means the
	// roles currently in the store.
	Registry permission.Registry
}

// APITokenFamily describes api tokens validated against reg.
func APITokenFamily(reg permission.Registry) Family {
	return Family{
		Name: APIToken,
		Salt: secret.SaltSpec{
			Family:    APIToken,
			Path:      config.APITokenSaltPath,
			LegacyEnv: "API_TOKEN_SALT",
		},
		Lifespans: expiry.Default(),
		Typed:     true,
		Grant:     GrantPermissions,
		Registry:  reg,
	}
}

// TransferTokenFamily describes transfer tokens. A nil reg uses TransferActions.
func TransferTokenFamily(reg permission.Registry) Family {
	if reg == nil {
		reg = TransferActions
	}
	return Family{
		Name: TransferToken,
		Salt: secret.SaltSpec{
			Family:    TransferToken,
			Path:      config.TransferTokenSaltPath,
			LegacyEnv: "TRANSFER_TOKEN_SALT",
		},
		Lifespans: expiry.Default(),
		Grant:     GrantPermissions,
		Registry:  reg,
	}
}

// ServiceAccountFamily describes service-account tokens granted admin roles.
// A nil roles registry validates against the roles in the store.
func ServiceAccountFamily(roles permission.Registry) Family {
	return Family{
		Name: ServiceAccountToken,
		Salt: secret.SaltSpec{
			Family: ServiceAccountToken,
			Path:   config.ServiceAccountSaltPath,
		},
		Lifespans: expiry.Positive(),
		Grant:     GrantRoles,
		Encrypt:   true,
		Registry:  roles,
	}
}
