// Package auth holds user accounts, password hashing and session tokens.
package auth

import (
	"time"
)

// User roles, in decreasing order of privilege
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
	RoleGuest      = "guest"
)

// Per-user permission overrides. Zero inherits from the role; the explicit
// values pin the permission regardless of role.
const (
	PermInherit = 0
	PermAllow   = 1
	PermDeny    = 2
)

// ProviderLocal marks accounts created with a password rather than via SSO
const ProviderLocal = "local"

// User is an account row
type User struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	Role          string `json:"role"`
	IsActive      bool   `json:"is_active"`
	StorageQuota  int    `json:"storage_quota_gb"`
	AuthProvider  string `json:"auth_provider"`
	ExternalID    string `json:"external_id,omitempty"`
	EmailVerified bool   `json:"email_verified"`

	CanArchiveMedia     int `json:"can_archive_media"`
	CanFetchFiles       int `json:"can_fetch_files"`
	CanCreateShareLinks int `json:"can_create_share_links"`
	CanViewPublicBoard  int `json:"can_view_public_board"`
	CanPostPublicBoard  int `json:"can_post_public_board"`
	CanUseTelegramBot   int `json:"can_use_telegram_bot"`

	HashedPassword string     `json:"-"`
	PasswordSetAt  *time.Time `json:"password_set_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// IsAdmin reports whether the user holds an administrative role
func (u *User) IsAdmin() bool {
	return u.Role == RoleSuperAdmin || u.Role == RoleAdmin
}

// HasLocalPassword reports whether the user ever set a password themselves.
// SSO-created accounts carry a random placeholder hash until they do.
func (u *User) HasLocalPassword() bool {
	return u.PasswordSetAt != nil
}
