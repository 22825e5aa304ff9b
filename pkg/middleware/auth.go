// Package middleware provides HTTP middleware for authentication, request
// identification and role gating.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mediakeep/mediakeep/pkg/auth"
	"github.com/mediakeep/mediakeep/pkg/contextkeys"
	"github.com/mediakeep/mediakeep/pkg/httputil"
)

// Auth verifies Bearer session tokens and loads the user into the request
// context. Requests without a valid token are rejected with 401.
type Auth struct {
	issuer *auth.SessionIssuer
	users  *auth.UserStore
}

// NewAuth creates the auth middleware
func NewAuth(issuer *auth.SessionIssuer, users *auth.UserStore) *Auth {
	return &Auth{issuer: issuer, users: users}
}

// Require wraps a handler with token verification
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httputil.WriteUnauthorized(w, "missing bearer token")
			return
		}

		claims, err := a.issuer.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		user, err := a.users.FindByID(r.Context(), claims.UserID)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		if user == nil || !user.IsActive {
			httputil.WriteUnauthorized(w, "account is not active")
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithUser(r.Context(), user)))
	})
}

// RequireSuperAdmin wraps a handler with token verification plus a
// super_admin role gate.
func (a *Auth) RequireSuperAdmin(next http.Handler) http.Handler {
	return a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFrom(r.Context())
		if user == nil || user.Role != auth.RoleSuperAdmin {
			httputil.WriteForbidden(w, "super admin access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// UserFrom returns the authenticated user from the context, or nil
func UserFrom(ctx context.Context) *auth.User {
	if user, ok := ctx.Value(contextkeys.UserKey).(*auth.User); ok {
		return user
	}
	return nil
}
