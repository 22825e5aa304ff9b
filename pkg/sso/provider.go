package sso

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mediakeep/mediakeep/pkg/secrets"
)

// providerTimeout bounds every network call to an identity provider
const providerTimeout = 10 * time.Second

// Provider is one identity provider's protocol client. Implementations are
// built per request from the stored ProviderConfig and are safe to discard.
type Provider interface {
	// Name returns the provider's unique name ("google", "authentik", ...)
	Name() string
	// AuthorizationURL builds the URL the browser is redirected to,
	// embedding the CSRF state token.
	AuthorizationURL(ctx context.Context, state string) (string, error)
	// ExchangeCode trades an authorization code for an access token
	ExchangeCode(ctx context.Context, code string) (string, error)
	// FetchIdentity retrieves and normalizes the provider's user info
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// NewProvider builds the protocol client for a stored provider config.
// The client secret is decrypted here; callers never see it.
func NewProvider(cfg *ProviderConfig, box *secrets.Box) (Provider, error) {
	if !cfg.Enabled {
		return nil, ErrProviderNotConfigured(cfg.Provider, errors.New("provider is disabled"))
	}
	if !cfg.HasCredentials() {
		return nil, ErrProviderNotConfigured(cfg.Provider, errors.New("missing client credentials"))
	}

	secret, err := box.Decrypt(cfg.EncryptedSecret)
	if err != nil {
		return nil, ErrProviderNotConfigured(cfg.Provider, err)
	}

	switch cfg.Provider {
	case ProviderGoogle:
		return newGoogleProvider(cfg, secret), nil
	case ProviderGitHub:
		return newGitHubProvider(cfg, secret), nil
	case ProviderMicrosoft:
		return newMicrosoftProvider(cfg, secret), nil
	default:
		// synology, authentik, generic_oidc and any custom OIDC entry
		return newOIDCProvider(cfg, secret), nil
	}
}

// newHTTPClient returns the bounded-timeout client used for all provider
// calls. insecure disables TLS verification for self-signed NAS setups.
func newHTTPClient(insecure bool) *http.Client {
	client := &http.Client{Timeout: providerTimeout}
	if insecure {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return client
}

// oauthBase carries the pieces shared by every x/oauth2-backed client
type oauthBase struct {
	name   string
	conf   *oauth2.Config
	client *http.Client
}

func (b *oauthBase) Name() string {
	return b.name
}

func (b *oauthBase) AuthorizationURL(_ context.Context, state string) (string, error) {
	return b.conf.AuthCodeURL(state), nil
}

func (b *oauthBase) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)
	token, err := b.conf.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", ErrTokenExchangeFailed(b.name, err)
		}
		// Only transport failures count as network errors; a 2xx response
		// with a malformed body is the provider misbehaving.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return "", ErrNetwork(b.name, err)
		}
		return "", ErrTokenExchangeFailed(b.name, err)
	}
	if token.AccessToken == "" {
		return "", ErrTokenExchangeFailed(b.name, errors.New("empty access token"))
	}
	return token.AccessToken, nil
}

// getJSON issues a bearer-authenticated GET and decodes the JSON body into
// dst, translating transport and HTTP failures into the error taxonomy.
func (b *oauthBase) getJSON(ctx context.Context, url, accessToken string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ErrNetwork(b.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return ErrNetwork(b.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ErrTokenExchangeFailed(b.name,
			fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return ErrTokenExchangeFailed(b.name, fmt.Errorf("malformed userinfo response: %w", err))
	}
	return nil
}

// emailLocalPart returns everything before the '@', or the input unchanged
func emailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
