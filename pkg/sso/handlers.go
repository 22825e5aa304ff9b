package sso

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mediakeep/mediakeep/pkg/auth"
	"github.com/mediakeep/mediakeep/pkg/httputil"
	"github.com/mediakeep/mediakeep/pkg/middleware"
	"github.com/mediakeep/mediakeep/pkg/observability"
	"github.com/mediakeep/mediakeep/pkg/secrets"
)

// Broker orchestrates the SSO flows: login-initiate, callback, link-initiate
// and unlink. It is stateless between requests; all cross-request state lives
// in the state store and the user store.
type Broker struct {
	providers *ProviderStore
	states    StateStore
	resolver  *Resolver
	users     *auth.UserStore
	sessions  *auth.SessionIssuer
	box       *secrets.Box
	logger    *observability.Logger
	metrics   *observability.Metrics

	frontendURL string

	// buildProvider is swapped by tests for fake protocol clients
	buildProvider func(*ProviderConfig, *secrets.Box) (Provider, error)
}

// NewBroker creates the broker
func NewBroker(providers *ProviderStore, states StateStore, resolver *Resolver,
	users *auth.UserStore, sessions *auth.SessionIssuer, box *secrets.Box,
	frontendURL string, logger *observability.Logger, metrics *observability.Metrics) *Broker {
	return &Broker{
		providers:     providers,
		states:        states,
		resolver:      resolver,
		users:         users,
		sessions:      sessions,
		box:           box,
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		logger:        logger,
		metrics:       metrics,
		buildProvider: NewProvider,
	}
}

// loadProvider builds the protocol client for a provider name
func (b *Broker) loadProvider(r *http.Request, name string) (Provider, *ProviderConfig, error) {
	cfg, err := b.providers.Get(r.Context(), name)
	if err != nil {
		return nil, nil, err
	}
	if cfg == nil {
		return nil, nil, ErrProviderNotFound(name)
	}
	client, err := b.buildProvider(cfg, b.box)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

// HandleProviders lists enabled providers for the login page. Secrets and
// endpoint URLs are never exposed here.
func (b *Broker) HandleProviders(w http.ResponseWriter, r *http.Request) {
	configs, err := b.providers.ListEnabled(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	providers := make([]PublicProvider, 0, len(configs))
	for _, cfg := range configs {
		name := cfg.DisplayName
		if name == "" {
			name = cfg.Provider
		}
		providers = append(providers, PublicProvider{
			Provider:    cfg.Provider,
			DisplayName: name,
			IconURL:     cfg.IconURL,
		})
	}
	httputil.WriteSuccess(w, map[string]interface{}{"providers": providers})
}

// HandleLogin starts a login flow: mint a state, redirect to the provider
func (b *Broker) HandleLogin(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]
	client, _, err := b.loadProvider(r, name)
	if err != nil {
		b.writeAuthError(w, r, err)
		return
	}

	state, err := b.states.Mint(r.Context(), name, nil)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	b.metrics.SSOStatesMinted.WithLabelValues(name).Inc()

	authURL, err := client.AuthorizationURL(r.Context(), state)
	if err != nil {
		b.writeAuthError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleLink starts an account-linking flow. The browser navigates here
// directly, so the session token arrives as a query parameter instead of an
// Authorization header.
func (b *Broker) HandleLink(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]

	claims, err := b.sessions.Verify(r.URL.Query().Get("token"))
	if err != nil {
		httputil.WriteUnauthorized(w, "invalid or expired token")
		return
	}
	user, err := b.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if user == nil || !user.IsActive {
		httputil.WriteUnauthorized(w, "account is not active")
		return
	}

	if user.AuthProvider == name {
		b.writeAuthError(w, r, ErrAlreadyLinked(name))
		return
	}

	client, _, err := b.loadProvider(r, name)
	if err != nil {
		b.writeAuthError(w, r, err)
		return
	}

	state, err := b.states.Mint(r.Context(), name, &user.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	b.metrics.SSOStatesMinted.WithLabelValues(name).Inc()

	authURL, err := client.AuthorizationURL(r.Context(), state)
	if err != nil {
		b.writeAuthError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback finishes a login or link flow. The browser has already left
// our origin, so every outcome is a 302 back to the frontend carrying either
// a session token or a human-readable error.
func (b *Broker) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]
	start := time.Now()
	defer func() {
		b.metrics.SSOCallbackDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	query := r.URL.Query()

	if providerError := query.Get("error"); providerError != "" {
		b.finishFailure(w, r, name, false, providerErrorMessage(providerError, query.Get("error_description")))
		return
	}

	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		b.finishFailure(w, r, name, false, "the identity provider returned an incomplete response")
		return
	}

	linkingUserID, err := b.states.Verify(r.Context(), state, name)
	if err != nil {
		b.metrics.SSOStatesVerified.WithLabelValues(name, "failure").Inc()
		b.finishFailure(w, r, name, false, userMessage(err))
		return
	}
	b.metrics.SSOStatesVerified.WithLabelValues(name, "success").Inc()
	linking := linkingUserID != nil

	client, _, err := b.loadProvider(r, name)
	if err != nil {
		b.finishFailure(w, r, name, linking, userMessage(err))
		return
	}

	accessToken, err := client.ExchangeCode(r.Context(), code)
	if err != nil {
		b.logger.WithError(err).WithField("provider", name).Warn("code exchange failed")
		b.finishFailure(w, r, name, linking, userMessage(err))
		return
	}

	identity, err := client.FetchIdentity(r.Context(), accessToken)
	if err != nil {
		b.logger.WithError(err).WithField("provider", name).Warn("userinfo fetch failed")
		b.finishFailure(w, r, name, linking, userMessage(err))
		return
	}
	identity.SynthesizeEmail(name)

	if linking {
		_, err := b.resolver.LinkToExistingAccount(r.Context(), *linkingUserID, name, identity)
		if err != nil {
			b.finishFailure(w, r, name, true, userMessage(err))
			return
		}
		b.metrics.SSOLoginsTotal.WithLabelValues(name, "linked").Inc()
		http.Redirect(w, r, b.frontendURL+"/settings?success="+url.QueryEscape("account linked to "+name), http.StatusFound)
		return
	}

	user, err := b.resolver.Resolve(r.Context(), name, identity)
	if err != nil {
		b.finishFailure(w, r, name, false, userMessage(err))
		return
	}

	token, err := b.sessions.Issue(user)
	if err != nil {
		b.finishFailure(w, r, name, false, "could not create a session, please try again")
		return
	}

	b.metrics.SSOLoginsTotal.WithLabelValues(name, "success").Inc()
	b.logger.WithFields(map[string]interface{}{
		"provider": name,
		"user_id":  user.ID,
	}).Info("SSO login completed")
	http.Redirect(w, r, b.frontendURL+"/?token="+url.QueryEscape(token), http.StatusFound)
}

// HandleUnlink detaches the authenticated user from their identity provider
func (b *Broker) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	if user == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var body struct {
		NewPassword string `json:"new_password"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.WriteBadRequest(w, "invalid request body")
			return
		}
	}

	if err := b.resolver.Unlink(r.Context(), user, body.NewPassword); err != nil {
		b.writeAuthError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "identity provider unlinked", nil)
}

// finishFailure ends a callback with an error redirect to the frontend
func (b *Broker) finishFailure(w http.ResponseWriter, r *http.Request, provider string, linking bool, message string) {
	b.metrics.SSOLoginsTotal.WithLabelValues(provider, "failure").Inc()

	target := b.frontendURL + "/login?error=" + url.QueryEscape(message)
	if linking {
		target = b.frontendURL + "/settings?error=" + url.QueryEscape(message)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// writeAuthError maps an error to a structured JSON response
func (b *Broker) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		if authErr.Status >= 500 {
			b.logger.WithError(err).Warn("SSO request failed")
		}
		httputil.WriteErrorMessage(w, authErr.Status, authErr.Message)
		return
	}
	b.logger.WithError(err).Error("SSO request failed")
	httputil.WriteInternalError(w, err)
}

// userMessage extracts the safe user-facing message from an error
func userMessage(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return "sign-in failed, please try again"
}

// providerErrorMessage maps the provider's OAuth2 error parameter to
// friendly text
func providerErrorMessage(code, description string) string {
	switch code {
	case "access_denied":
		return "sign-in was cancelled"
	case "temporarily_unavailable":
		return "the identity provider is temporarily unavailable"
	default:
		if description != "" {
			return description
		}
		return "the identity provider reported an error"
	}
}
