package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const wellKnownSuffix = "/.well-known/openid-configuration"

// oidcProvider serves synology, authentik, generic_oidc and any custom OIDC
// entry. Endpoints come from explicit configuration, OIDC discovery, or (for
// authentik) the vendor's fixed URL layout; explicit values always win.
type oidcProvider struct {
	oauthBase

	discoveryURL string
	userinfoURL  string

	once    sync.Once
	loadErr error
}

func newOIDCProvider(cfg *ProviderConfig, secret string) *oidcProvider {
	scopes := cfg.ScopeList()
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	authURL, tokenURL, userinfoURL := cfg.AuthorizationURL, cfg.TokenURL, cfg.UserinfoURL
	if cfg.Provider == ProviderAuthentik && authURL != "" {
		// authentik exposes token/userinfo at fixed paths on the same origin
		if origin := urlOrigin(authURL); origin != "" {
			if tokenURL == "" {
				tokenURL = origin + "/application/o/token/"
			}
			if userinfoURL == "" {
				userinfoURL = origin + "/application/o/userinfo/"
			}
		}
	}

	return &oidcProvider{
		oauthBase: oauthBase{
			name: cfg.Provider,
			conf: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: secret,
				RedirectURL:  cfg.RedirectURI,
				Scopes:       scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:  authURL,
					TokenURL: tokenURL,
				},
			},
			client: newHTTPClient(cfg.InsecureSkipVerify),
		},
		discoveryURL: cfg.DiscoveryURL,
		userinfoURL:  userinfoURL,
	}
}

// ensureEndpoints resolves missing endpoints through discovery. It runs at
// most once per instance; a failure is cached and repeated to every caller.
func (p *oidcProvider) ensureEndpoints(ctx context.Context) error {
	p.once.Do(func() {
		if p.conf.Endpoint.AuthURL != "" && p.conf.Endpoint.TokenURL != "" && p.userinfoURL != "" {
			return
		}
		if p.discoveryURL == "" {
			p.loadErr = ErrProviderNotConfigured(p.name,
				errors.New("endpoints not fully configured and no discovery URL set"))
			return
		}

		issuer := strings.TrimSuffix(p.discoveryURL, wellKnownSuffix)
		issuer = strings.TrimSuffix(issuer, "/")

		dctx := gooidc.ClientContext(ctx, p.client)
		// Self-hosted IdPs frequently report an issuer that differs from the
		// URL they are reached at (reverse proxies, internal hostnames).
		dctx = gooidc.InsecureIssuerURLContext(dctx, issuer)

		discovered, err := gooidc.NewProvider(dctx, issuer)
		if err != nil {
			p.loadErr = ErrProviderNotConfigured(p.name, fmt.Errorf("discovery failed: %w", err))
			return
		}

		endpoint := discovered.Endpoint()
		if p.conf.Endpoint.AuthURL == "" {
			p.conf.Endpoint.AuthURL = endpoint.AuthURL
		}
		if p.conf.Endpoint.TokenURL == "" {
			p.conf.Endpoint.TokenURL = endpoint.TokenURL
		}
		if p.userinfoURL == "" {
			var meta struct {
				UserinfoEndpoint string `json:"userinfo_endpoint"`
			}
			if err := discovered.Claims(&meta); err == nil {
				p.userinfoURL = meta.UserinfoEndpoint
			}
		}

		if p.conf.Endpoint.AuthURL == "" || p.conf.Endpoint.TokenURL == "" || p.userinfoURL == "" {
			p.loadErr = ErrProviderNotConfigured(p.name,
				errors.New("discovery did not yield all required endpoints"))
		}
	})
	return p.loadErr
}

func (p *oidcProvider) AuthorizationURL(ctx context.Context, state string) (string, error) {
	if err := p.ensureEndpoints(ctx); err != nil {
		return "", err
	}
	return p.conf.AuthCodeURL(state), nil
}

func (p *oidcProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	if err := p.ensureEndpoints(ctx); err != nil {
		return "", err
	}
	return p.oauthBase.ExchangeCode(ctx, code)
}

func (p *oidcProvider) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	if err := p.ensureEndpoints(ctx); err != nil {
		return nil, err
	}

	var info struct {
		Sub               string     `json:"sub"`
		ID                flexString `json:"id"`
		UserID            flexString `json:"user_id"`
		Email             string     `json:"email"`
		EmailVerified     *flexBool  `json:"email_verified"`
		Name              string     `json:"name"`
		PreferredUsername string     `json:"preferred_username"`
		Username          string     `json:"username"`
	}
	if err := p.getJSON(ctx, p.userinfoURL, accessToken, &info); err != nil {
		return nil, err
	}

	externalID := info.Sub
	if externalID == "" {
		externalID = string(info.ID)
	}
	if externalID == "" {
		externalID = string(info.UserID)
	}
	if externalID == "" {
		externalID = info.Email
	}
	if externalID == "" {
		return nil, ErrMissingRequiredField("user id")
	}

	username := info.PreferredUsername
	if username == "" {
		username = info.Username
	}

	name := info.Name
	if name == "" {
		name = username
	}
	if name == "" && info.Email != "" {
		name = emailLocalPart(info.Email)
	}
	if name == "" {
		name = "User"
	}

	// The IdP's own SSO layer is the trust anchor; absent the claim, the
	// email counts as verified.
	verified := true
	if info.EmailVerified != nil {
		verified = bool(*info.EmailVerified)
	}

	return &Identity{
		ExternalID:    externalID,
		Email:         info.Email,
		Name:          name,
		Username:      username,
		EmailVerified: verified,
	}, nil
}

// urlOrigin returns scheme://host of a URL, or "" when unparseable
func urlOrigin(rawURL string) string {
	rest := rawURL
	i := strings.Index(rest, "://")
	if i < 0 {
		return ""
	}
	scheme := rest[:i]
	rest = rest[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return ""
	}
	return scheme + "://" + rest
}

// flexString tolerates identity providers that serialize ids as numbers
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("value is neither string nor number: %s", data)
}

// flexBool tolerates "email_verified" arriving as a string claim
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexBool(strings.EqualFold(s, "true"))
		return nil
	}
	return fmt.Errorf("value is neither bool nor string: %s", data)
}
