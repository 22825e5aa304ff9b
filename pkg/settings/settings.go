// Package settings provides DB-backed runtime settings.
//
// Administrators toggle registration and approval policy at runtime without
// restarting the server, so these live in the database rather than in
// environment configuration.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/mediakeep/mediakeep/pkg/storage"
)

// Well-known setting keys
const (
	KeyAllowRegistration  = "allow_registration"
	KeyRequireApproval    = "require_admin_approval"
	KeyDefaultUserRole    = "default_user_role"
	KeyDefaultUserQuotaGB = "default_user_quota_gb"
	KeyAdminQuotaGB       = "admin_quota_gb"
)

// Service reads and writes settings rows
type Service struct {
	db *storage.DB
}

// NewService creates a settings service
func NewService(db *storage.DB) *Service {
	return &Service{db: db}
}

// Get returns the value for key, or defaultValue when unset
func (s *Service) Get(ctx context.Context, key, defaultValue string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT value FROM settings WHERE key = ?`), key).Scan(&value)
	if err == sql.ErrNoRows {
		return defaultValue, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// GetBool returns a boolean setting. Accepts true/false/1/0/yes/no.
func (s *Service) GetBool(ctx context.Context, key string, defaultValue bool) (bool, error) {
	value, err := s.Get(ctx, key, "")
	if err != nil {
		return false, err
	}
	switch value {
	case "":
		return defaultValue, nil
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return defaultValue, nil
	}
}

// GetInt returns an integer setting
func (s *Service) GetInt(ctx context.Context, key string, defaultValue int) (int, error) {
	value, err := s.Get(ctx, key, "")
	if err != nil {
		return 0, err
	}
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, nil
	}
	return parsed, nil
}

// Set upserts a setting
func (s *Service) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`), key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
