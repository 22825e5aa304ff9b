package sso

import (
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/mediakeep/mediakeep/pkg/observability"
	"github.com/mediakeep/mediakeep/pkg/secrets"
)

func newTestBox(t *testing.T) *secrets.Box {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	box, err := secrets.NewBox(key)
	require.NoError(t, err)
	return box
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// userRows builds the column set scanned by auth.UserStore
func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "email", "display_name", "hashed_password", "role",
		"is_active", "storage_quota_gb", "auth_provider", "external_id",
		"email_verified", "can_archive_media", "can_fetch_files",
		"can_create_share_links", "can_view_public_board",
		"can_post_public_board", "can_use_telegram_bot",
		"password_set_at", "created_at", "last_login_at",
	})
}

func addUserRow(rows *sqlmock.Rows, id int64, username, email, provider, externalID string, active bool) *sqlmock.Rows {
	var ext interface{}
	if externalID != "" {
		ext = externalID
	}
	return rows.AddRow(id, username, email, "Someone", "$2a$10$hash", "user",
		active, 1, provider, ext, true, 0, 0, 0, 0, 0, 0, nil, time.Now(), nil)
}

// providerRows builds the column set scanned by ProviderStore
func providerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "provider", "provider_type", "enabled", "client_id",
		"client_secret_encrypted", "redirect_uri", "scopes",
		"authorization_url", "token_url", "userinfo_url", "discovery_url",
		"display_name", "icon_url", "insecure_skip_verify",
		"created_at", "updated_at",
	})
}
