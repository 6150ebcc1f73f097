package storage

import (
	"context"
	"fmt"
)

// ListGrants returns the grant values of a token in insertion order.
// Returns empty slice if the token has no grants.
func (s *SQLiteStorage) ListGrants(ctx context.Context, tokenID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT value FROM token_grants WHERE token_id = ? ORDER BY id ASC", tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	grants := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan grant row: %w", err)
		}
		grants = append(grants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grants: %w", err)
	}
	return grants, nil
}

// AddGrants links values to a token. Values already linked are left as they are.
func (s *SQLiteStorage) AddGrants(ctx context.Context, tokenID int64, values []string) error {
	for _, v := range values {
		_, err := s.q.ExecContext(ctx,
			"INSERT INTO token_grants (token_id, value) VALUES (?, ?) ON CONFLICT (token_id, value) DO NOTHING",
			tokenID, v)
		if err != nil {
			return fmt.Errorf("failed to insert grant %q: %w", v, err)
		}
	}
	return nil
}

// RemoveGrants unlinks values from a token. Missing values are ignored.
func (s *SQLiteStorage) RemoveGrants(ctx context.Context, tokenID int64, values []string) error {
	if len(values) == 0 {
		return nil
	}

	args := make([]any, 0, len(values)+1)
	args = append(args, tokenID)
	for _, v := range values {
		args = append(args, v)
	}

	_, err := s.q.ExecContext(ctx,
		"DELETE FROM token_grants WHERE token_id = ? AND value IN ("+placeholders(len(values))+")", args...)
	if err != nil {
		return fmt.Errorf("failed to delete grants: %w", err)
	}
	return nil
}

// ClearGrants removes every grant of a token.
func (s *SQLiteStorage) ClearGrants(ctx context.Context, tokenID int64) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM token_grants WHERE token_id = ?", tokenID); err != nil {
		return fmt.Errorf("failed to clear grants: %w", err)
	}
	return nil
}
