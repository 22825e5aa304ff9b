package sso

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mediakeep/mediakeep/pkg/storage"
)

const providerColumns = `id, provider, provider_type, enabled, client_id,
	client_secret_encrypted, redirect_uri, scopes, authorization_url, token_url,
	userinfo_url, discovery_url, display_name, icon_url, insecure_skip_verify,
	created_at, updated_at`

// ProviderStore persists provider configurations
type ProviderStore struct {
	db *storage.DB
}

// NewProviderStore creates a provider store
func NewProviderStore(db *storage.DB) *ProviderStore {
	return &ProviderStore{db: db}
}

func scanProvider(scan func(dest ...interface{}) error) (*ProviderConfig, error) {
	var c ProviderConfig
	var clientID, secret, redirectURI, scopes sql.NullString
	var authURL, tokenURL, userinfoURL, discoveryURL sql.NullString
	var displayName, iconURL sql.NullString

	err := scan(&c.ID, &c.Provider, &c.Kind, &c.Enabled, &clientID, &secret,
		&redirectURI, &scopes, &authURL, &tokenURL, &userinfoURL, &discoveryURL,
		&displayName, &iconURL, &c.InsecureSkipVerify, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.ClientID = clientID.String
	c.EncryptedSecret = secret.String
	c.RedirectURI = redirectURI.String
	c.Scopes = scopes.String
	c.AuthorizationURL = authURL.String
	c.TokenURL = tokenURL.String
	c.UserinfoURL = userinfoURL.String
	c.DiscoveryURL = discoveryURL.String
	c.DisplayName = displayName.String
	c.IconURL = iconURL.String
	return &c, nil
}

// Get returns a provider config by name, or nil when absent
func (s *ProviderStore) Get(ctx context.Context, name string) (*ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+providerColumns+` FROM sso_providers WHERE provider = ?`), name)
	cfg, err := scanProvider(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load provider %s: %w", name, err)
	}
	return cfg, nil
}

// List returns all provider configs ordered by name
func (s *ProviderStore) List(ctx context.Context) ([]*ProviderConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+providerColumns+` FROM sso_providers ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var configs []*ProviderConfig
	for rows.Next() {
		cfg, err := scanProvider(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// ListEnabled returns only enabled provider configs
func (s *ProviderStore) ListEnabled(ctx context.Context) ([]*ProviderConfig, error) {
	configs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := configs[:0]
	for _, cfg := range configs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	return enabled, nil
}

// Upsert inserts or updates a provider config by name
func (s *ProviderStore) Upsert(ctx context.Context, cfg *ProviderConfig) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO sso_providers (provider, provider_type, enabled, client_id,
			client_secret_encrypted, redirect_uri, scopes, authorization_url,
			token_url, userinfo_url, discovery_url, display_name, icon_url,
			insecure_skip_verify, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider) DO UPDATE SET
			provider_type = excluded.provider_type,
			enabled = excluded.enabled,
			client_id = excluded.client_id,
			client_secret_encrypted = excluded.client_secret_encrypted,
			redirect_uri = excluded.redirect_uri,
			scopes = excluded.scopes,
			authorization_url = excluded.authorization_url,
			token_url = excluded.token_url,
			userinfo_url = excluded.userinfo_url,
			discovery_url = excluded.discovery_url,
			display_name = excluded.display_name,
			icon_url = excluded.icon_url,
			insecure_skip_verify = excluded.insecure_skip_verify,
			updated_at = excluded.updated_at
	`), cfg.Provider, cfg.Kind, cfg.Enabled, cfg.ClientID, cfg.EncryptedSecret,
		cfg.RedirectURI, cfg.Scopes, cfg.AuthorizationURL, cfg.TokenURL,
		cfg.UserinfoURL, cfg.DiscoveryURL, cfg.DisplayName, cfg.IconURL,
		cfg.InsecureSkipVerify, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert provider %s: %w", cfg.Provider, err)
	}
	return nil
}

// Delete removes a provider config by name
func (s *ProviderStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM sso_providers WHERE provider = ?`), name)
	if err != nil {
		return fmt.Errorf("failed to delete provider %s: %w", name, err)
	}
	return nil
}

// SeedBuiltins inserts the built-in provider rows, disabled, on first run.
// Existing rows are left untouched.
func (s *ProviderStore) SeedBuiltins(ctx context.Context) error {
	builtins := []ProviderConfig{
		{Provider: ProviderGoogle, Kind: KindOAuth2, DisplayName: "Google"},
		{Provider: ProviderGitHub, Kind: KindOAuth2, DisplayName: "GitHub"},
		{Provider: ProviderMicrosoft, Kind: KindOAuth2, DisplayName: "Microsoft"},
		{Provider: ProviderSynology, Kind: KindOIDC, DisplayName: "Synology", InsecureSkipVerify: true},
		{Provider: ProviderAuthentik, Kind: KindOIDC, DisplayName: "Authentik"},
		{Provider: ProviderGenericOIDC, Kind: KindOIDC, DisplayName: "OpenID Connect"},
	}

	now := time.Now().UTC()
	for _, b := range builtins {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO sso_providers (provider, provider_type, enabled,
				display_name, insecure_skip_verify, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (provider) DO NOTHING
		`), b.Provider, b.Kind, false, b.DisplayName, b.InsecureSkipVerify, now, now)
		if err != nil {
			return fmt.Errorf("failed to seed provider %s: %w", b.Provider, err)
		}
	}
	return nil
}
