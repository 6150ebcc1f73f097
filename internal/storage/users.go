package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = "id, firstname, lastname, username, email, password, is_active, blocked, reset_password_token, registration_token, created_at, updated_at"

// CreateUser inserts u and links the roles listed in u.Roles by ID.
// Returns ErrDuplicate if the email is already registered.
func (s *SQLiteStorage) CreateUser(ctx context.Context, u *User) (*User, error) {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	result, err := s.q.ExecContext(ctx,
		`INSERT INTO admin_users (firstname, lastname, username, email, password, is_active, blocked,
			reset_password_token, registration_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Firstname, u.Lastname, u.Username, u.Email, u.Password, u.IsActive, u.Blocked,
		nullString(u.ResetPasswordToken), nullString(u.RegistrationToken), toMillis(now), toMillis(now))
	if err != nil {
		if isConstraint(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}
	u.ID = id

	if len(u.Roles) > 0 {
		ids := make([]int64, len(u.Roles))
		for i, r := range u.Roles {
			ids[i] = r.ID
		}
		if err := s.SetUserRoles(ctx, id, ids); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// GetUserByID retrieves a user with roles. Returns ErrNotFound if absent.
func (s *SQLiteStorage) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByEmail looks a user up by exact email.
func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email = ?", email)
}

// GetUserByResetToken looks a user up by reset-password token.
func (s *SQLiteStorage) GetUserByResetToken(ctx context.Context, token string) (*User, error) {
	return s.getUser(ctx, "reset_password_token = ?", token)
}

// GetUserByRegistrationToken looks a user up by registration token.
func (s *SQLiteStorage) GetUserByRegistrationToken(ctx context.Context, token string) (*User, error) {
	return s.getUser(ctx, "registration_token = ?", token)
}

func (s *SQLiteStorage) getUser(ctx context.Context, where string, args ...any) (*User, error) {
	var (
		u                    User
		reset, registration  sql.NullString
		createdAt, updatedAt int64
	)
	err := s.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM admin_users WHERE "+where, args...).
		Scan(&u.ID, &u.Firstname, &u.Lastname, &u.Username, &u.Email, &u.Password, &u.IsActive, &u.Blocked,
			&reset, &registration, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.ResetPasswordToken = fromNullString(reset)
	u.RegistrationToken = fromNullString(registration)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)

	if u.Roles, err = s.userRoles(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStorage) userRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT r.id, r.code, r.name, r.description FROM admin_roles r
		JOIN admin_user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ? ORDER BY r.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	roles := []Role{}
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan role row: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}

// UpdateUser writes every column of u except roles.
// Returns ErrNotFound if the user doesn't exist, ErrDuplicate on an email clash.
func (s *SQLiteStorage) UpdateUser(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()

	result, err := s.q.ExecContext(ctx,
		`UPDATE admin_users SET firstname = ?, lastname = ?, username = ?, email = ?, password = ?,
			is_active = ?, blocked = ?, reset_password_token = ?, registration_token = ?, updated_at = ?
		WHERE id = ?`,
		u.Firstname, u.Lastname, u.Username, u.Email, u.Password, u.IsActive, u.Blocked,
		nullString(u.ResetPasswordToken), nullString(u.RegistrationToken), toMillis(u.UpdatedAt), u.ID)
	if err != nil {
		if isConstraint(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireAffected(result)
}

// SetUserRoles replaces the roles of a user.
func (s *SQLiteStorage) SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM admin_user_roles WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear user roles: %w", err)
	}
	for _, id := range roleIDs {
		_, err := s.q.ExecContext(ctx,
			"INSERT INTO admin_user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT DO NOTHING", userID, id)
		if err != nil {
			if isConstraint(err) {
				return fmt.Errorf("unknown role %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to link role: %w", err)
		}
	}
	return nil
}

// DeleteUser deletes a user by ID. Role links cascade.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStorage) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, "DELETE FROM admin_users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result)
}

// CountUsers returns the number of admin users.
func (s *SQLiteStorage) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM admin_users").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CountActiveUsersWithRole counts active users holding the role with code.
func (s *SQLiteStorage) CountActiveUsersWithRole(ctx context.Context, code string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT u.id) FROM admin_users u
		JOIN admin_user_roles ur ON ur.user_id = u.id
		JOIN admin_roles r ON r.id = ur.role_id
		WHERE u.is_active = TRUE AND r.code = ?`, code).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users with role: %w", err)
	}
	return count, nil
}

// CreateRole inserts a role. Returns ErrDuplicate if the code exists.
func (s *SQLiteStorage) CreateRole(ctx context.Context, r *Role) (*Role, error) {
	result, err := s.q.ExecContext(ctx,
		"INSERT INTO admin_roles (code, name, description) VALUES (?, ?, ?)", r.Code, r.Name, r.Description)
	if err != nil {
		if isConstraint(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	if r.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}
	return r, nil
}

// GetRoleByCode returns the role with code, or ErrNotFound.
func (s *SQLiteStorage) GetRoleByCode(ctx context.Context, code string) (*Role, error) {
	var r Role
	err := s.q.QueryRowContext(ctx,
		"SELECT id, code, name, description FROM admin_roles WHERE code = ?", code).
		Scan(&r.ID, &r.Code, &r.Name, &r.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &r, nil
}

// ListRoles returns all roles ordered by ID.
func (s *SQLiteStorage) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT id, code, name, description FROM admin_roles ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	roles := make([]*Role, 0)
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan role row: %w", err)
		}
		roles = append(roles, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}
