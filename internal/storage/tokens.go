package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const tokenColumns = "id, family, name, description, type, access_key, encrypted_key, last_used_at, lifespan, expires_at, created_at, updated_at"

// CreateToken inserts t and its grants. CreatedAt and UpdatedAt default to now
// when zero. Returns ErrDuplicate if the name is taken within the family or
// the access key already exists.
func (s *SQLiteStorage) CreateToken(ctx context.Context, t *Token) (*Token, error) {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	result, err := s.q.ExecContext(ctx,
		`INSERT INTO tokens (family, name, description, type, access_key, encrypted_key,
			last_used_at, lifespan, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Family, t.Name, t.Description, t.Type, t.AccessKey, emptyAsNull(t.EncryptedKey),
		nullMillis(t.LastUsedAt), nullInt(t.Lifespan), nullMillis(t.ExpiresAt),
		toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	if err != nil {
		if isConstraint(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}
	t.ID = id

	if err := s.AddGrants(ctx, id, t.Grants); err != nil {
		return nil, err
	}
	if t.Grants == nil {
		t.Grants = []string{}
	}

	return t, nil
}

// GetTokenByID retrieves a token with its grants.
// Returns ErrNotFound if the token doesn't exist in family.
func (s *SQLiteStorage) GetTokenByID(ctx context.Context, family string, id int64) (*Token, error) {
	return s.getToken(ctx, "family = ? AND id = ?", family, id)
}

// GetTokenByName retrieves a token by its unique name within family.
func (s *SQLiteStorage) GetTokenByName(ctx context.Context, family, name string) (*Token, error) {
	return s.getToken(ctx, "family = ? AND name = ?", family, name)
}

// GetTokenByAccessKey retrieves a token by its hashed secret.
// This is used during authentication to look up the token.
func (s *SQLiteStorage) GetTokenByAccessKey(ctx context.Context, family, accessKey string) (*Token, error) {
	return s.getToken(ctx, "family = ? AND access_key = ?", family, accessKey)
}

func (s *SQLiteStorage) getToken(ctx context.Context, where string, args ...any) (*Token, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+tokenColumns+" FROM tokens WHERE "+where, args...)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if t.Grants, err = s.ListGrants(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTokens returns all tokens of family ordered by name ascending, grants included.
// Returns empty slice if no tokens exist.
func (s *SQLiteStorage) ListTokens(ctx context.Context, family string) ([]*Token, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+tokenColumns+" FROM tokens WHERE family = ? ORDER BY name ASC", family)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	tokens := make([]*Token, 0)
	byID := make(map[int64]*Token)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		t.Grants = []string{}
		tokens = append(tokens, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	if len(tokens) == 0 {
		return tokens, nil
	}

	grantRows, err := s.q.QueryContext(ctx,
		`SELECT g.token_id, g.value FROM token_grants g
		JOIN tokens t ON t.id = g.token_id
		WHERE t.family = ? ORDER BY g.id ASC`, family)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer grantRows.Close() //nolint:errcheck

	for grantRows.Next() {
		var tokenID int64
		var value string
		if err := grantRows.Scan(&tokenID, &value); err != nil {
			return nil, fmt.Errorf("failed to scan grant row: %w", err)
		}
		if t, ok := byID[tokenID]; ok {
			t.Grants = append(t.Grants, value)
		}
	}
	if err := grantRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grants: %w", err)
	}

	return tokens, nil
}

// UpdateToken writes every mutable column of t. Grants are not touched.
// Returns ErrNotFound if the token doesn't exist, ErrDuplicate on a name clash.
func (s *SQLiteStorage) UpdateToken(ctx context.Context, t *Token) error {
	t.UpdatedAt = time.Now().UTC()

	result, err := s.q.ExecContext(ctx,
		`UPDATE tokens SET name = ?, description = ?, type = ?, access_key = ?, encrypted_key = ?,
			last_used_at = ?, lifespan = ?, expires_at = ?, updated_at = ?
		WHERE id = ? AND family = ?`,
		t.Name, t.Description, t.Type, t.AccessKey, emptyAsNull(t.EncryptedKey),
		nullMillis(t.LastUsedAt), nullInt(t.Lifespan), nullMillis(t.ExpiresAt), toMillis(t.UpdatedAt),
		t.ID, t.Family)
	if err != nil {
		if isConstraint(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update token: %w", err)
	}
	return requireAffected(result)
}

// SetTokenSecret replaces the hashed and encrypted secret of a token and
// leaves every other column as stored.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStorage) SetTokenSecret(ctx context.Context, family string, id int64, accessKey, encryptedKey string) error {
	result, err := s.q.ExecContext(ctx,
		"UPDATE tokens SET access_key = ?, encrypted_key = ?, updated_at = ? WHERE id = ? AND family = ?",
		accessKey, emptyAsNull(encryptedKey), toMillis(time.Now().UTC()), id, family)
	if err != nil {
		if isConstraint(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to set token secret: %w", err)
	}
	return requireAffected(result)
}

// TouchToken records a successful use of the token.
func (s *SQLiteStorage) TouchToken(ctx context.Context, id int64, at time.Time) error {
	result, err := s.q.ExecContext(ctx, "UPDATE tokens SET last_used_at = ? WHERE id = ?", toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return requireAffected(result)
}

// DeleteToken deletes a token by ID.
// Returns ErrNotFound if the token doesn't exist.
// Cascades to grants via foreign key constraint.
func (s *SQLiteStorage) DeleteToken(ctx context.Context, family string, id int64) error {
	result, err := s.q.ExecContext(ctx, "DELETE FROM tokens WHERE id = ? AND family = ?", id, family)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return requireAffected(result)
}

// CountExpiredTokens counts tokens of family whose expiry is at or before now.
func (s *SQLiteStorage) CountExpiredTokens(ctx context.Context, family string, now time.Time) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tokens WHERE family = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		family, toMillis(now)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired tokens: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*Token, error) {
	var (
		t                    Token
		encrypted            sql.NullString
		lastUsed, expires    sql.NullInt64
		lifespan             sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&t.ID, &t.Family, &t.Name, &t.Description, &t.Type, &t.AccessKey, &encrypted,
		&lastUsed, &lifespan, &expires, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.EncryptedKey = encrypted.String
	t.LastUsedAt = fromNullMillis(lastUsed)
	t.Lifespan = fromNullInt(lifespan)
	t.ExpiresAt = fromNullMillis(expires)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func emptyAsNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
