package storage

import (
	"context"
	"fmt"
	"strings"
)

// migrations holds the schema statements shared by both dialects, with the
// primary-key fragment substituted per driver.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id %[1]s,
		username TEXT NOT NULL UNIQUE,
		email TEXT UNIQUE,
		display_name TEXT,
		hashed_password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		storage_quota_gb INTEGER NOT NULL DEFAULT 10,
		auth_provider TEXT NOT NULL DEFAULT 'local',
		external_id TEXT,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		can_archive_media INTEGER NOT NULL DEFAULT 0,
		can_fetch_files INTEGER NOT NULL DEFAULT 0,
		can_create_share_links INTEGER NOT NULL DEFAULT 0,
		can_view_public_board INTEGER NOT NULL DEFAULT 0,
		can_post_public_board INTEGER NOT NULL DEFAULT 0,
		can_use_telegram_bot INTEGER NOT NULL DEFAULT 0,
		password_set_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		last_login_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_sso
		ON users (auth_provider, external_id)
		WHERE external_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_users_email ON users (email)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sso_providers (
		id %[1]s,
		provider TEXT NOT NULL UNIQUE,
		provider_type TEXT NOT NULL DEFAULT 'oauth2',
		enabled BOOLEAN NOT NULL DEFAULT FALSE,
		client_id TEXT,
		client_secret_encrypted TEXT,
		redirect_uri TEXT,
		scopes TEXT,
		authorization_url TEXT,
		token_url TEXT,
		userinfo_url TEXT,
		discovery_url TEXT,
		display_name TEXT,
		icon_url TEXT,
		insecure_skip_verify BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sso_states (
		id %[1]s,
		state TEXT NOT NULL UNIQUE,
		provider TEXT NOT NULL,
		user_id BIGINT,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sso_states_expires ON sso_states (expires_at)`,
}

// Migrate creates the schema if it does not exist
func (d *DB) Migrate(ctx context.Context) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.Driver == DriverPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
	}

	for _, stmt := range migrations {
		if strings.Contains(stmt, "%[1]s") {
			stmt = fmt.Sprintf(stmt, pk)
		}
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
