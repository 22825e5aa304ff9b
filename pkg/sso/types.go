// Package sso implements the SSO authentication broker: provider clients,
// the anti-CSRF state store, the identity resolver and the HTTP surface.
package sso

import (
	"strings"
	"time"
)

// Provider kinds. OAuth2 providers carry fixed endpoints; OIDC providers may
// resolve endpoints through discovery.
const (
	KindOAuth2 = "oauth2"
	KindOIDC   = "oidc"
)

// Built-in provider names
const (
	ProviderGoogle      = "google"
	ProviderGitHub      = "github"
	ProviderMicrosoft   = "microsoft"
	ProviderSynology    = "synology"
	ProviderAuthentik   = "authentik"
	ProviderGenericOIDC = "generic_oidc"
)

// builtinProviders cannot be deleted through the admin API
var builtinProviders = map[string]bool{
	ProviderGoogle:      true,
	ProviderGitHub:      true,
	ProviderMicrosoft:   true,
	ProviderSynology:    true,
	ProviderAuthentik:   true,
	ProviderGenericOIDC: true,
}

// IsBuiltin reports whether name is a built-in provider
func IsBuiltin(name string) bool {
	return builtinProviders[name]
}

// ProviderConfig is one identity provider's stored configuration. The client
// secret is held encrypted; decryption happens only when a client is built.
type ProviderConfig struct {
	ID                 int64
	Provider           string
	Kind               string
	Enabled            bool
	ClientID           string
	EncryptedSecret    string
	RedirectURI        string
	Scopes             string
	AuthorizationURL   string
	TokenURL           string
	UserinfoURL        string
	DiscoveryURL       string
	DisplayName        string
	IconURL            string
	InsecureSkipVerify bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ScopeList splits the space-separated scopes column
func (c *ProviderConfig) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

// HasCredentials reports whether client id and secret are both present
func (c *ProviderConfig) HasCredentials() bool {
	return c.ClientID != "" && c.EncryptedSecret != ""
}

// Identity is the provider-agnostic user info shape every client produces.
// It is ephemeral and never persisted.
type Identity struct {
	ExternalID    string
	Email         string
	Name          string
	Username      string
	EmailVerified bool
}

// SynthesizeEmail fills a missing email as <handle>@<provider>.local. It
// returns false when neither a username nor an external id is available.
func (id *Identity) SynthesizeEmail(provider string) bool {
	if id.Email != "" {
		return true
	}
	switch {
	case id.Username != "":
		id.Email = id.Username + "@" + provider + ".local"
	case id.ExternalID != "":
		id.Email = id.ExternalID + "@" + provider + ".local"
	default:
		return false
	}
	return true
}

// PublicProvider is the representation exposed on the public provider list
type PublicProvider struct {
	Provider    string `json:"provider"`
	DisplayName string `json:"display_name"`
	IconURL     string `json:"icon_url,omitempty"`
}

// SanitizedConfig is the admin view of a provider config. The secret itself
// is never echoed, only whether one is stored.
type SanitizedConfig struct {
	Provider           string `json:"provider"`
	Kind               string `json:"provider_type"`
	Enabled            bool   `json:"enabled"`
	ClientID           string `json:"client_id,omitempty"`
	HasClientSecret    bool   `json:"has_client_secret"`
	RedirectURI        string `json:"redirect_uri,omitempty"`
	Scopes             string `json:"scopes,omitempty"`
	AuthorizationURL   string `json:"authorization_url,omitempty"`
	TokenURL           string `json:"token_url,omitempty"`
	UserinfoURL        string `json:"userinfo_url,omitempty"`
	DiscoveryURL       string `json:"discovery_url,omitempty"`
	DisplayName        string `json:"display_name,omitempty"`
	IconURL            string `json:"icon_url,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
}

// Sanitize strips the encrypted secret from a config for admin responses
func (c *ProviderConfig) Sanitize() SanitizedConfig {
	return SanitizedConfig{
		Provider:           c.Provider,
		Kind:               c.Kind,
		Enabled:            c.Enabled,
		ClientID:           c.ClientID,
		HasClientSecret:    c.EncryptedSecret != "",
		RedirectURI:        c.RedirectURI,
		Scopes:             c.Scopes,
		AuthorizationURL:   c.AuthorizationURL,
		TokenURL:           c.TokenURL,
		UserinfoURL:        c.UserinfoURL,
		DiscoveryURL:       c.DiscoveryURL,
		DisplayName:        c.DisplayName,
		IconURL:            c.IconURL,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}

// StateTTL is how long a minted CSRF state token stays valid
const StateTTL = 10 * time.Minute
