package sso

import (
	"fmt"
	"net/http"
)

// Error codes for the SSO broker
const (
	CodeProviderNotFound          = "provider_not_found"
	CodeProviderNotConfigured     = "provider_not_configured"
	CodeInvalidState              = "invalid_state"
	CodeExpiredState              = "expired_state"
	CodeTokenExchangeFailed       = "token_exchange_failed"
	CodeNetworkError              = "network_error"
	CodeMissingRequiredField      = "missing_required_field"
	CodeEmailMismatch             = "email_mismatch"
	CodeAlreadyLinked             = "already_linked"
	CodeNotLinked                 = "not_linked"
	CodeRegistrationDisabled      = "registration_disabled"
	CodePendingApproval           = "pending_approval"
	CodePendingApprovalNewAccount = "pending_approval_new_account"
	CodePasswordRequired          = "password_required"
)

// AuthError is a structured broker error carrying a machine code, an HTTP
// status for pre-redirect failures, and a user-facing message safe to embed
// in a callback redirect.
type AuthError struct {
	Code    string
	Status  int
	Message string
	cause   error
}

func (e *AuthError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.cause
}

func newAuthError(code string, status int, message string, cause error) *AuthError {
	return &AuthError{Code: code, Status: status, Message: message, cause: cause}
}

// ErrProviderNotFound means no such provider is configured at all
func ErrProviderNotFound(provider string) *AuthError {
	return newAuthError(CodeProviderNotFound, http.StatusNotFound,
		fmt.Sprintf("unknown identity provider %q", provider), nil)
}

// ErrProviderNotConfigured means the provider exists but is disabled,
// missing credentials, or its endpoints could not be resolved.
func ErrProviderNotConfigured(provider string, cause error) *AuthError {
	return newAuthError(CodeProviderNotConfigured, http.StatusServiceUnavailable,
		fmt.Sprintf("identity provider %q is not configured", provider), cause)
}

// ErrInvalidState covers missing, foreign-provider and replayed states
func ErrInvalidState() *AuthError {
	return newAuthError(CodeInvalidState, http.StatusBadRequest,
		"login session is invalid, please try again", nil)
}

// ErrExpiredState means the state token outlived its 10-minute window
func ErrExpiredState() *AuthError {
	return newAuthError(CodeExpiredState, http.StatusBadRequest,
		"login session expired, please try again", nil)
}

// ErrTokenExchangeFailed wraps a failed authorization-code exchange
func ErrTokenExchangeFailed(provider string, cause error) *AuthError {
	return newAuthError(CodeTokenExchangeFailed, http.StatusBadGateway,
		fmt.Sprintf("could not complete sign-in with %s", provider), cause)
}

// ErrNetwork wraps a transport failure or timeout against a provider
func ErrNetwork(provider string, cause error) *AuthError {
	return newAuthError(CodeNetworkError, http.StatusBadGateway,
		fmt.Sprintf("could not reach %s", provider), cause)
}

// ErrMissingRequiredField means the provider supplied no usable identity field
func ErrMissingRequiredField(field string) *AuthError {
	return newAuthError(CodeMissingRequiredField, http.StatusBadRequest,
		fmt.Sprintf("identity provider did not supply a %s", field), nil)
}

// ErrEmailMismatch rejects a link whose SSO email differs from the account's
func ErrEmailMismatch() *AuthError {
	return newAuthError(CodeEmailMismatch, http.StatusBadRequest,
		"the identity's email does not match your account email", nil)
}

// ErrAlreadyLinked rejects linking a provider the account already uses
func ErrAlreadyLinked(provider string) *AuthError {
	return newAuthError(CodeAlreadyLinked, http.StatusBadRequest,
		fmt.Sprintf("account is already linked to %s", provider), nil)
}

// ErrNotLinked rejects unlinking when no provider is linked
func ErrNotLinked() *AuthError {
	return newAuthError(CodeNotLinked, http.StatusBadRequest,
		"account is not linked to an identity provider", nil)
}

// ErrRegistrationDisabled rejects account creation under closed registration
func ErrRegistrationDisabled() *AuthError {
	return newAuthError(CodeRegistrationDisabled, http.StatusForbidden,
		"registration is disabled on this server", nil)
}

// ErrPendingApproval blocks login for accounts awaiting admin approval
func ErrPendingApproval() *AuthError {
	return newAuthError(CodePendingApproval, http.StatusForbidden,
		"your account is awaiting administrator approval", nil)
}

// ErrPendingApprovalNewAccount reports a just-created account that needs
// approval before first login
func ErrPendingApprovalNewAccount() *AuthError {
	return newAuthError(CodePendingApprovalNewAccount, http.StatusForbidden,
		"your account was created and is awaiting administrator approval", nil)
}

// ErrPasswordRequired blocks unlink when the account has no usable password
func ErrPasswordRequired() *AuthError {
	return newAuthError(CodePasswordRequired, http.StatusBadRequest,
		"set a password before unlinking your identity provider", nil)
}
