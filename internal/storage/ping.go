package storage

import (
	"context"
	"fmt"
)

// Ping verifies database connectivity with a lightweight query.
// Used by the /ready endpoint.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	var result int
	if err := s.q.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("database ping returned unexpected result: %d", result)
	}

	return nil
}
