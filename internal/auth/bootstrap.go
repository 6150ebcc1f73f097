package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/sipico/admin-auth/internal/apperr"
	"github.com/sipico/admin-auth/internal/events"
	"github.com/sipico/admin-auth/internal/storage"
)

// BootstrapState represents the system configuration state
type BootstrapState int

const (
	// StateUnconfigured means no admin user exists yet.
	// The first super admin may register in this state.
	StateUnconfigured BootstrapState = iota

	// StateConfigured means at least one admin user exists.
	// Registration of a first admin is locked out in this state.
	StateConfigured
)

// String returns the string representation of the bootstrap state
func (s BootstrapState) String() string {
	switch s {
	case StateUnconfigured:
		return "UNCONFIGURED"
	case StateConfigured:
		return "CONFIGURED"
	default:
		return "UNKNOWN"
	}
}

// AdminInfo describes the first super admin.
type AdminInfo struct {
	Email     string
	Firstname string
	Lastname  string
	Password  string
}

// BootstrapService manages the bootstrap state machine
type BootstrapService struct {
	store storage.Store
	bus   events.Bus
}

// NewBootstrapService creates a new bootstrap service. A nil bus drops events.
func NewBootstrapService(store storage.Store, bus events.Bus) *BootstrapService {
	if bus == nil {
		bus = events.Nop{}
	}
	return &BootstrapService{store: store, bus: bus}
}

// GetState returns the current bootstrap state
// Returns StateUnconfigured if no admin users exist
// Returns StateConfigured if at least one admin user exists
func (b *BootstrapService) GetState(ctx context.Context) (BootstrapState, error) {
	n, err := b.store.CountUsers(ctx)
	if err != nil {
		return StateUnconfigured, err
	}
	if n > 0 {
		return StateConfigured, nil
	}
	return StateUnconfigured, nil
}

// CanRegisterAdmin returns true only during UNCONFIGURED state
func (b *BootstrapService) CanRegisterAdmin(ctx context.Context) (bool, error) {
	state, err := b.GetState(ctx)
	if err != nil {
		return false, err
	}
	return state == StateUnconfigured, nil
}

// RegisterAdmin creates the first user, active and holding the super admin
// role. The role is created when missing. Fails once any user exists.
func (b *BootstrapService) RegisterAdmin(ctx context.Context, info AdminInfo) (*storage.User, error) {
	email := normalizeEmail(info.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("email must be a valid email")
	}
	if strings.TrimSpace(info.Firstname) == "" {
		return nil, apperr.Validation("firstname is a required field")
	}
	if err := ValidatePasswordPolicy(info.Password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(info.Password)
	if err != nil {
		return nil, err
	}

	var created *storage.User
	err = b.store.WithTx(ctx, func(tx storage.Store) error {
		n, err := tx.CountUsers(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Application("You cannot register a new super admin")
		}

		role, err := tx.GetRoleByCode(ctx, storage.SuperAdminCode)
		if errors.Is(err, storage.ErrNotFound) {
			role, err = tx.CreateRole(ctx, &storage.Role{
				Code:        storage.SuperAdminCode,
				Name:        "Super Admin",
				Description: "Super Admins can access and manage all features and settings.",
			})
		}
		if err != nil {
			return err
		}

		u, err := tx.CreateUser(ctx, &storage.User{
			Email:     email,
			Firstname: strings.TrimSpace(info.Firstname),
			Lastname:  strings.TrimSpace(info.Lastname),
			Password:  hash,
			IsActive:  true,
		})
		if err != nil {
			return err
		}
		if err := tx.SetUserRoles(ctx, u.ID, []int64{role.ID}); err != nil {
			return err
		}
		u.Roles = []storage.Role{*role}
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.bus.Emit(ctx, events.UserCreate, map[string]any{"id": created.ID})
	return created, nil
}
