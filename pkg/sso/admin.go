package sso

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mediakeep/mediakeep/pkg/httputil"
	"github.com/mediakeep/mediakeep/pkg/observability"
	"github.com/mediakeep/mediakeep/pkg/secrets"
)

// AdminHandlers manages provider configuration. Routes are gated behind the
// super_admin role by the router.
type AdminHandlers struct {
	providers *ProviderStore
	box       *secrets.Box
	logger    *observability.Logger
}

// NewAdminHandlers creates the admin handler set
func NewAdminHandlers(providers *ProviderStore, box *secrets.Box, logger *observability.Logger) *AdminHandlers {
	return &AdminHandlers{providers: providers, box: box, logger: logger}
}

// HandleList returns every provider config with secrets redacted
func (h *AdminHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	configs, err := h.providers.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	sanitized := make([]SanitizedConfig, 0, len(configs))
	for _, cfg := range configs {
		sanitized = append(sanitized, cfg.Sanitize())
	}
	httputil.WriteSuccess(w, map[string]interface{}{"providers": sanitized})
}

type providerUpdateRequest struct {
	Kind               string `json:"provider_type"`
	Enabled            bool   `json:"enabled"`
	ClientID           string `json:"client_id"`
	ClientSecret       string `json:"client_secret"`
	RedirectURI        string `json:"redirect_uri"`
	Scopes             string `json:"scopes"`
	AuthorizationURL   string `json:"authorization_url"`
	TokenURL           string `json:"token_url"`
	UserinfoURL        string `json:"userinfo_url"`
	DiscoveryURL       string `json:"discovery_url"`
	DisplayName        string `json:"display_name"`
	IconURL            string `json:"icon_url"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
}

// HandleUpdate upserts a provider config. The client secret is write-only:
// an empty value keeps the stored one, a non-empty value replaces it after
// encryption.
func (h *AdminHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]

	var req providerUpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	existing, err := h.providers.Get(r.Context(), name)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	cfg := &ProviderConfig{Provider: name, Kind: KindOIDC}
	if existing != nil {
		cfg = existing
	}
	if req.Kind != "" {
		cfg.Kind = req.Kind
	}

	cfg.Enabled = req.Enabled
	cfg.ClientID = req.ClientID
	cfg.RedirectURI = req.RedirectURI
	cfg.Scopes = req.Scopes
	cfg.AuthorizationURL = req.AuthorizationURL
	cfg.TokenURL = req.TokenURL
	cfg.UserinfoURL = req.UserinfoURL
	cfg.DiscoveryURL = req.DiscoveryURL
	cfg.DisplayName = req.DisplayName
	cfg.IconURL = req.IconURL
	cfg.InsecureSkipVerify = req.InsecureSkipVerify

	if req.ClientSecret != "" {
		if !h.box.Configured() {
			httputil.WriteServiceUnavailable(w, "secret encryption key is not configured")
			return
		}
		sealed, err := h.box.Encrypt(req.ClientSecret)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		cfg.EncryptedSecret = sealed
	}

	if cfg.Enabled && !cfg.HasCredentials() {
		httputil.WriteBadRequest(w, "enabling a provider requires a client id and client secret")
		return
	}

	if err := h.providers.Upsert(r.Context(), cfg); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"provider": name,
		"enabled":  cfg.Enabled,
	}).Info("provider configuration updated")
	httputil.WriteSuccess(w, cfg.Sanitize())
}

// HandleDelete removes a custom provider. Built-in providers refuse deletion;
// disable them instead.
func (h *AdminHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]

	if IsBuiltin(name) {
		httputil.WriteBadRequest(w, "built-in providers cannot be deleted, disable them instead")
		return
	}

	existing, err := h.providers.Get(r.Context(), name)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if existing == nil {
		httputil.WriteNotFound(w, "no such provider")
		return
	}

	if err := h.providers.Delete(r.Context(), name); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.logger.WithField("provider", name).Info("provider deleted")
	httputil.WriteSuccessMessage(w, "provider deleted", nil)
}

// HandleGenerateKey mints a fresh AES key for the secret box. Rotating the
// configured key does not re-encrypt stored secrets; the response says so.
func (h *AdminHandlers) HandleGenerateKey(w http.ResponseWriter, r *http.Request) {
	key, err := secrets.GenerateKey()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{
		"encryption_key": key,
		"warning": "replacing the active key makes previously stored client " +
			"secrets undecryptable; re-enter provider secrets after rotating",
	})
}
