package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Timestamps are unix milliseconds.
	ddlStatements := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			family TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			access_key TEXT NOT NULL UNIQUE,
			encrypted_key TEXT,
			last_used_at INTEGER,
			lifespan INTEGER,
			expires_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (family, name)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tokens_family_expires ON tokens(family, expires_at)`,

		// token_grants holds permission action ids or role codes per token
		`CREATE TABLE IF NOT EXISTS token_grants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_id INTEGER NOT NULL,
			value TEXT NOT NULL,
			UNIQUE (token_id, value),
			FOREIGN KEY (token_id) REFERENCES tokens(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS admin_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS admin_users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			firstname TEXT NOT NULL DEFAULT '',
			lastname TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			reset_password_token TEXT,
			registration_token TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_admin_users_reset ON admin_users(reset_password_token)`,
		`CREATE INDEX IF NOT EXISTS idx_admin_users_registration ON admin_users(registration_token)`,

		`CREATE TABLE IF NOT EXISTS admin_user_roles (
			user_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			PRIMARY KEY (user_id, role_id),
			FOREIGN KEY (user_id) REFERENCES admin_users(id) ON DELETE CASCADE,
			FOREIGN KEY (role_id) REFERENCES admin_roles(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
