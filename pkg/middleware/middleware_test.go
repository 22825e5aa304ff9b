package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediakeep/mediakeep/pkg/auth"
	"github.com/mediakeep/mediakeep/pkg/storage"
)

func newAuth(t *testing.T) (*Auth, *auth.SessionIssuer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	issuer := auth.NewSessionIssuer("test-secret", time.Hour)
	return NewAuth(issuer, auth.NewUserStore(storage.Wrap(db, storage.DriverSQLite))), issuer, mock
}

func activeUserRow(id int64, role string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "email", "display_name", "hashed_password", "role",
		"is_active", "storage_quota_gb", "auth_provider", "external_id",
		"email_verified", "can_archive_media", "can_fetch_files",
		"can_create_share_links", "can_view_public_board",
		"can_post_public_board", "can_use_telegram_bot",
		"password_set_at", "created_at", "last_login_at",
	}).AddRow(id, "alice", nil, nil, "hash", role, active, 1, "google", "g-1",
		true, 0, 0, 0, 0, 0, 0, nil, time.Now(), nil)
}

func TestRequire_NoToken(t *testing.T) {
	a, _, _ := newAuth(t)

	rec := httptest.NewRecorder()
	a.Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequire_BadToken(t *testing.T) {
	a, _, _ := newAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	a.Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequire_LoadsUser(t *testing.T) {
	a, issuer, mock := newAuth(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \?`).
		WithArgs(int64(7)).
		WillReturnRows(activeUserRow(7, auth.RoleUser, true))

	token, err := issuer.Issue(&auth.User{ID: 7, Username: "alice"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	var got *auth.User
	a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.ID)
}

func TestRequire_InactiveUser(t *testing.T) {
	a, issuer, mock := newAuth(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \?`).
		WithArgs(int64(7)).
		WillReturnRows(activeUserRow(7, auth.RoleUser, false))

	token, err := issuer.Issue(&auth.User{ID: 7, Username: "alice"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSuperAdmin_Forbidden(t *testing.T) {
	a, issuer, mock := newAuth(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \?`).
		WithArgs(int64(7)).
		WillReturnRows(activeUserRow(7, auth.RoleAdmin, true))

	token, err := issuer.Issue(&auth.User{ID: 7, Username: "alice"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.RequireSuperAdmin(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireSuperAdmin_Allowed(t *testing.T) {
	a, issuer, mock := newAuth(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(activeUserRow(1, auth.RoleSuperAdmin, true))

	token, err := issuer.Issue(&auth.User{ID: 1, Username: "root"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.RequireSuperAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID_Generated(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_Propagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))
}
