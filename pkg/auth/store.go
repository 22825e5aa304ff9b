package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mediakeep/mediakeep/pkg/storage"
)

// userColumns is the canonical column list scanned into a User
const userColumns = `id, username, email, display_name, hashed_password, role, is_active,
	storage_quota_gb, auth_provider, external_id, email_verified,
	can_archive_media, can_fetch_files, can_create_share_links,
	can_view_public_board, can_post_public_board, can_use_telegram_bot,
	password_set_at, created_at, last_login_at`

// UserStore persists user accounts
type UserStore struct {
	db *storage.DB
}

// NewUserStore creates a user store
func NewUserStore(db *storage.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var email, displayName, externalID sql.NullString
	var passwordSetAt, lastLoginAt sql.NullTime

	err := row.Scan(&u.ID, &u.Username, &email, &displayName, &u.HashedPassword,
		&u.Role, &u.IsActive, &u.StorageQuota, &u.AuthProvider, &externalID,
		&u.EmailVerified, &u.CanArchiveMedia, &u.CanFetchFiles,
		&u.CanCreateShareLinks, &u.CanViewPublicBoard, &u.CanPostPublicBoard,
		&u.CanUseTelegramBot, &passwordSetAt, &u.CreatedAt, &lastLoginAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Email = email.String
	u.DisplayName = displayName.String
	u.ExternalID = externalID.String
	if passwordSetAt.Valid {
		t := passwordSetAt.Time
		u.PasswordSetAt = &t
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// FindByID returns the user with the given id, or nil when absent
func (s *UserStore) FindByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	return scanUser(row)
}

// FindByUsername returns the user with the given username, or nil when absent
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username)
	return scanUser(row)
}

// FindByEmail returns the user with the given email, or nil when absent
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	return scanUser(row)
}

// FindBySSO returns the user linked to the given provider identity, or nil
func (s *UserStore) FindBySSO(ctx context.Context, provider, externalID string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE auth_provider = ? AND external_id = ?`),
		provider, externalID)
	return scanUser(row)
}

// Count returns the total number of user accounts
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// Create inserts a new user and sets its ID
func (s *UserStore) Create(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO users (username, email, display_name, hashed_password, role,
		is_active, storage_quota_gb, auth_provider, external_id, email_verified,
		can_archive_media, can_fetch_files, can_create_share_links,
		can_view_public_board, can_post_public_board, can_use_telegram_bot,
		password_set_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args := []interface{}{
		u.Username, nullString(u.Email), nullString(u.DisplayName), u.HashedPassword,
		u.Role, u.IsActive, u.StorageQuota, u.AuthProvider, nullString(u.ExternalID),
		u.EmailVerified, u.CanArchiveMedia, u.CanFetchFiles, u.CanCreateShareLinks,
		u.CanViewPublicBoard, u.CanPostPublicBoard, u.CanUseTelegramBot,
		nullTime(u.PasswordSetAt), u.CreatedAt,
	}

	if s.db.Driver == storage.DriverPostgres {
		err := s.db.QueryRowContext(ctx, s.db.Rebind(query+` RETURNING id`), args...).Scan(&u.ID)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new user id: %w", err)
	}
	u.ID = id
	return nil
}

// LinkSSO re-points an account at a provider identity
func (s *UserStore) LinkSSO(ctx context.Context, userID int64, provider, externalID string, emailVerified bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE users SET auth_provider = ?, external_id = ?, email_verified = ? WHERE id = ?`),
		provider, externalID, emailVerified, userID)
	if err != nil {
		return fmt.Errorf("failed to link account: %w", err)
	}
	return nil
}

// SetEmail backfills an account's email address
func (s *UserStore) SetEmail(ctx context.Context, userID int64, email string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE users SET email = ? WHERE id = ?`), email, userID)
	if err != nil {
		return fmt.Errorf("failed to set email: %w", err)
	}
	return nil
}

// UnlinkSSO reverts an account to local authentication. When newHashedPassword
// is non-empty the password is replaced and password_set_at stamped.
func (s *UserStore) UnlinkSSO(ctx context.Context, userID int64, newHashedPassword string) error {
	var err error
	if newHashedPassword != "" {
		_, err = s.db.ExecContext(ctx, s.db.Rebind(
			`UPDATE users SET auth_provider = ?, external_id = NULL,
				hashed_password = ?, password_set_at = ? WHERE id = ?`),
			ProviderLocal, newHashedPassword, time.Now().UTC(), userID)
	} else {
		_, err = s.db.ExecContext(ctx, s.db.Rebind(
			`UPDATE users SET auth_provider = ?, external_id = NULL WHERE id = ?`),
			ProviderLocal, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the user's last_login_at
func (s *UserStore) UpdateLastLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE users SET last_login_at = ? WHERE id = ?`),
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
