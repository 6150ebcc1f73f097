// Package user manages admin panel users. Every write keeps at least one
// active user holding the super admin role.
package user

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"slices"
	"strings"

	"github.com/sipico/admin-auth/internal/apperr"
	"github.com/sipico/admin-auth/internal/auth"
	"github.com/sipico/admin-auth/internal/events"
	"github.com/sipico/admin-auth/internal/secret"
	"github.com/sipico/admin-auth/internal/storage"
)

// MsgLastSuperAdmin is returned when a write would leave no active super admin.
const MsgLastSuperAdmin = "You must have at least one user with super admin role."

// CreateParams describes a new user. Without a Password the user is invited:
// it gets a registration token and stays inactive until it registers.
type CreateParams struct {
	Email     string
	Firstname string
	Lastname  string
	Username  string
	Password  string
	IsActive  bool
	Roles     []int64
}

// UpdateParams is a partial update. Nil fields are left untouched.
type UpdateParams struct {
	Email     *string
	Firstname *string
	Lastname  *string
	Username  *string
	Password  *string
	IsActive  *bool
	Roles     []int64
}

// Service manages admin users.
type Service struct {
	store  storage.Store
	bus    events.Bus
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithEventBus sets the bus receiving user.create, user.update and user.delete.
func WithEventBus(b events.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// NewService creates a Service backed by store.
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{store: store, bus: events.Nop{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a user.
func (s *Service) Create(ctx context.Context, params CreateParams) (*storage.User, error) {
	email, err := validateEmail(params.Email)
	if err != nil {
		return nil, err
	}

	u := &storage.User{
		Email:     email,
		Firstname: strings.TrimSpace(params.Firstname),
		Lastname:  strings.TrimSpace(params.Lastname),
		Username:  strings.TrimSpace(params.Username),
	}
	if params.Password != "" {
		if err := auth.ValidatePasswordPolicy(params.Password); err != nil {
			return nil, err
		}
		if u.Password, err = auth.HashPassword(params.Password); err != nil {
			return nil, err
		}
		u.IsActive = params.IsActive
	} else {
		regToken, err := secret.GenerateShortSecret()
		if err != nil {
			return nil, err
		}
		u.RegistrationToken = &regToken
	}

	err = s.store.WithTx(ctx, func(tx storage.Store) error {
		roles, err := resolveRoles(ctx, tx, params.Roles)
		if err != nil {
			return err
		}
		u.Roles = roles
		created, err := tx.CreateUser(ctx, u)
		if errors.Is(err, storage.ErrDuplicate) {
			return apperr.Validation("Email already taken")
		}
		if err != nil {
			return err
		}
		u = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin user created", "id", u.ID, "invited", u.RegistrationToken != nil)
	s.bus.Emit(ctx, events.UserCreate, map[string]any{"id": u.ID})
	return u, nil
}

// Update applies a partial update. Removing the super admin role from, or
// deactivating, the last active super admin fails with a ValidationError.
func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*storage.User, error) {
	var updated *storage.User
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		u, err := tx.GetUserByID(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("User does not exist")
		}
		if err != nil {
			return err
		}

		var roles []storage.Role
		if params.Roles != nil {
			if roles, err = resolveRoles(ctx, tx, params.Roles); err != nil {
				return err
			}
		}

		dropsRole := params.Roles != nil && !hasCode(roles, storage.SuperAdminCode)
		deactivates := params.IsActive != nil && !*params.IsActive
		if dropsRole || deactivates {
			last, err := isLastSuperAdmin(ctx, tx, u)
			if err != nil {
				return err
			}
			if last {
				return apperr.Validation(MsgLastSuperAdmin)
			}
		}

		if params.Email != nil {
			if u.Email, err = validateEmail(*params.Email); err != nil {
				return err
			}
		}
		if params.Firstname != nil {
			u.Firstname = strings.TrimSpace(*params.Firstname)
		}
		if params.Lastname != nil {
			u.Lastname = strings.TrimSpace(*params.Lastname)
		}
		if params.Username != nil {
			u.Username = strings.TrimSpace(*params.Username)
		}
		if params.IsActive != nil {
			u.IsActive = *params.IsActive
		}
		if params.Password != nil {
			if err := auth.ValidatePasswordPolicy(*params.Password); err != nil {
				return err
			}
			if u.Password, err = auth.HashPassword(*params.Password); err != nil {
				return err
			}
		}

		if err := tx.UpdateUser(ctx, u); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return apperr.Validation("Email already taken")
			}
			return err
		}
		if params.Roles != nil {
			if err := tx.SetUserRoles(ctx, u.ID, roleIDs(roles)); err != nil {
				return err
			}
			u.Roles = roles
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Emit(ctx, events.UserUpdate, map[string]any{"id": updated.ID})
	return updated, nil
}

// DeleteByID deletes a user and returns it, or nil when it did not exist.
// Deleting the last active super admin fails with a ValidationError.
func (s *Service) DeleteByID(ctx context.Context, id int64) (*storage.User, error) {
	var deleted *storage.User
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		u, err := tx.GetUserByID(ctx, id)
		if err != nil {
			return err
		}
		last, err := isLastSuperAdmin(ctx, tx, u)
		if err != nil {
			return err
		}
		if last {
			return apperr.Validation(MsgLastSuperAdmin)
		}
		if err := tx.DeleteUser(ctx, id); err != nil {
			return err
		}
		deleted = u
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin user deleted", "id", deleted.ID)
	s.bus.Emit(ctx, events.UserDelete, map[string]any{"id": deleted.ID})
	return deleted, nil
}

// DeleteByIDs deletes every existing user in ids. It fails without deleting
// anything when the batch holds every active super admin.
func (s *Service) DeleteByIDs(ctx context.Context, ids []int64) ([]*storage.User, error) {
	var deleted []*storage.User
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		var supers int
		for _, id := range slices.Compact(slices.Sorted(slices.Values(ids))) {
			u, err := tx.GetUserByID(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if u.IsActive && u.HasRole(storage.SuperAdminCode) {
				supers++
			}
			deleted = append(deleted, u)
		}

		if supers > 0 {
			total, err := tx.CountActiveUsersWithRole(ctx, storage.SuperAdminCode)
			if err != nil {
				return err
			}
			if supers >= total {
				return apperr.Validation(MsgLastSuperAdmin)
			}
		}

		for _, u := range deleted {
			if err := tx.DeleteUser(ctx, u.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, u := range deleted {
		s.bus.Emit(ctx, events.UserDelete, map[string]any{"id": u.ID})
	}
	return deleted, nil
}

// FindByID returns the user, or nil when it does not exist.
func (s *Service) FindByID(ctx context.Context, id int64) (*storage.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// CountActiveSuperAdmins returns the number of active users holding the
// super admin role.
func (s *Service) CountActiveSuperAdmins(ctx context.Context) (int, error) {
	return s.store.CountActiveUsersWithRole(ctx, storage.SuperAdminCode)
}

func isLastSuperAdmin(ctx context.Context, tx storage.Store, u *storage.User) (bool, error) {
	if !u.IsActive || !u.HasRole(storage.SuperAdminCode) {
		return false, nil
	}
	n, err := tx.CountActiveUsersWithRole(ctx, storage.SuperAdminCode)
	if err != nil {
		return false, err
	}
	return n <= 1, nil
}

func resolveRoles(ctx context.Context, tx storage.Store, ids []int64) ([]storage.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	all, err := tx.ListRoles(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]storage.Role, 0, len(ids))
	for _, id := range ids {
		i := slices.IndexFunc(all, func(r *storage.Role) bool { return r.ID == id })
		if i < 0 {
			return nil, apperr.Validation("Some roles do not exist")
		}
		if !hasCode(out, all[i].Code) {
			out = append(out, *all[i])
		}
	}
	return out, nil
}

func hasCode(roles []storage.Role, code string) bool {
	return slices.ContainsFunc(roles, func(r storage.Role) bool { return r.Code == code })
}

func roleIDs(roles []storage.Role) []int64 {
	ids := make([]int64, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}
	return ids
}

func validateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.Validation("email is a required field")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Validation("email must be a valid email")
	}
	return email, nil
}
