package sso

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mediakeep/mediakeep/pkg/auth"
	"github.com/mediakeep/mediakeep/pkg/observability"
	"github.com/mediakeep/mediakeep/pkg/settings"
	"github.com/mediakeep/mediakeep/pkg/storage"
)

// First-account bootstrap values. The very first account ever created gets
// full control of the deployment regardless of configured policy.
const (
	firstUserRole    = auth.RoleSuperAdmin
	firstUserQuotaGB = 100
)

// Resolver maps a verified external identity onto a local account
type Resolver struct {
	users    *auth.UserStore
	settings *settings.Service
	logger   *observability.Logger
}

// NewResolver creates a resolver
func NewResolver(users *auth.UserStore, svc *settings.Service, logger *observability.Logger) *Resolver {
	return &Resolver{users: users, settings: svc, logger: logger}
}

// Resolve finds or provisions the account for an external identity.
//
// Precedence is a security contract:
//  1. exact (provider, external id) match: reuse, never overwrite fields
//  2. email match: re-point that account to this provider
//  3. create, subject to registration and approval policy
func (r *Resolver) Resolve(ctx context.Context, provider string, identity *Identity) (*auth.User, error) {
	if identity.Email == "" {
		return nil, ErrMissingRequiredField("email")
	}

	user, err := r.users.FindBySSO(ctx, provider, identity.ExternalID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if !user.IsActive {
			return nil, ErrPendingApproval()
		}
		if err := r.users.UpdateLastLogin(ctx, user.ID); err != nil {
			return nil, err
		}
		return user, nil
	}

	user, err = r.users.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return r.adoptByEmail(ctx, user, provider, identity)
	}

	return r.create(ctx, provider, identity)
}

// adoptByEmail re-points an existing account at this provider identity. This
// lets a password user upgrade to SSO, or switch providers, on email match
// alone; the behavior is intentional and load-bearing.
func (r *Resolver) adoptByEmail(ctx context.Context, user *auth.User, provider string, identity *Identity) (*auth.User, error) {
	if !user.IsActive {
		return nil, ErrPendingApproval()
	}

	err := r.users.LinkSSO(ctx, user.ID, provider, identity.ExternalID, identity.EmailVerified)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			// A concurrent callback claimed this identity first
			return nil, ErrInvalidState()
		}
		return nil, err
	}
	if err := r.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"provider": provider,
		"previous": user.AuthProvider,
	}).Info("account re-linked by email match")

	user.AuthProvider = provider
	user.ExternalID = identity.ExternalID
	user.EmailVerified = identity.EmailVerified
	return user, nil
}

func (r *Resolver) create(ctx context.Context, provider string, identity *Identity) (*auth.User, error) {
	count, err := r.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	first := count == 0

	if !first {
		allowed, err := r.settings.GetBool(ctx, settings.KeyAllowRegistration, true)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrRegistrationDisabled()
		}
	}

	role := firstUserRole
	quota := firstUserQuotaGB
	active := true
	if !first {
		role, err = r.settings.Get(ctx, settings.KeyDefaultUserRole, auth.RoleUser)
		if err != nil {
			return nil, err
		}
		// admin-role accounts get the admin quota, not the user default
		quotaKey, quotaDefault := settings.KeyDefaultUserQuotaGB, 1
		if role == auth.RoleAdmin || role == auth.RoleSuperAdmin {
			quotaKey, quotaDefault = settings.KeyAdminQuotaGB, 10
		}
		quota, err = r.settings.GetInt(ctx, quotaKey, quotaDefault)
		if err != nil {
			return nil, err
		}
		needsApproval, err := r.settings.GetBool(ctx, settings.KeyRequireApproval, false)
		if err != nil {
			return nil, err
		}
		active = !needsApproval
	}

	username, err := r.pickUsername(ctx, identity.Email)
	if err != nil {
		return nil, err
	}

	displayName := identity.Name
	if displayName == "" {
		displayName = emailLocalPart(identity.Email)
	}

	// SSO accounts carry an unusable random password until the user sets one
	placeholder, err := auth.RandomPassword()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(placeholder)
	if err != nil {
		return nil, err
	}

	user := &auth.User{
		Username:       username,
		Email:          identity.Email,
		DisplayName:    displayName,
		HashedPassword: hash,
		Role:           role,
		IsActive:       active,
		StorageQuota:   quota,
		AuthProvider:   provider,
		ExternalID:     identity.ExternalID,
		EmailVerified:  identity.EmailVerified,
		// permission flags stay at inherit so role policy applies retroactively
	}

	if err := r.users.Create(ctx, user); err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrInvalidState()
		}
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"provider": provider,
		"role":     role,
		"active":   active,
	}).Info("provisioned account from SSO identity")

	if !active {
		return nil, ErrPendingApprovalNewAccount()
	}
	if err := r.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// pickUsername uses the email itself, disambiguating with a random suffix
// when another account already holds it under a different email.
func (r *Resolver) pickUsername(ctx context.Context, email string) (string, error) {
	existing, err := r.users.FindByUsername(ctx, email)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return email, nil
	}

	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	if i := strings.IndexByte(email, '@'); i > 0 {
		return fmt.Sprintf("%s_%s@%s", email[:i], suffix, email[i+1:]), nil
	}
	return email + "_" + suffix, nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// LinkToExistingAccount attaches a provider identity to an authenticated
// account (the account-linking flow). The account's email, when present,
// must match the identity's.
func (r *Resolver) LinkToExistingAccount(ctx context.Context, userID int64, provider string, identity *Identity) (*auth.User, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidState()
	}

	if user.Email != "" && !strings.EqualFold(user.Email, identity.Email) {
		return nil, ErrEmailMismatch()
	}

	err = r.users.LinkSSO(ctx, user.ID, provider, identity.ExternalID, true)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrInvalidState()
		}
		return nil, err
	}

	if user.Email == "" && identity.Email != "" {
		if err := r.users.SetEmail(ctx, user.ID, identity.Email); err != nil {
			return nil, err
		}
		user.Email = identity.Email
	}

	user.AuthProvider = provider
	user.ExternalID = identity.ExternalID
	user.EmailVerified = true
	return user, nil
}

// Unlink reverts an account to local authentication. Accounts provisioned by
// SSO (email-shaped username) with no password of their own must supply one.
func (r *Resolver) Unlink(ctx context.Context, user *auth.User, newPassword string) error {
	if user.AuthProvider == auth.ProviderLocal {
		return ErrNotLinked()
	}

	ssoProvisioned := strings.Contains(user.Username, "@") && !user.HasLocalPassword()
	if ssoProvisioned && newPassword == "" {
		return ErrPasswordRequired()
	}

	var hash string
	if newPassword != "" {
		var err error
		hash, err = auth.HashPassword(newPassword)
		if err != nil {
			return err
		}
	}
	return r.users.UnlinkSSO(ctx, user.ID, hash)
}
