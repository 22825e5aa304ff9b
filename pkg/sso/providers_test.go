package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func TestGoogle_FetchIdentity(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(
		`{"id":"g-123","email":"alice@example.com","name":"Alice","verified_email":true}`))
	defer srv.Close()

	p := newGoogleProvider(&ProviderConfig{
		Provider: ProviderGoogle, ClientID: "cid", UserinfoURL: srv.URL,
	}, "secret")

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "g-123", id.ExternalID)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, "Alice", id.Name)
	assert.True(t, id.EmailVerified)
}

func TestGoogle_VerifiedEmailDefaultsFalse(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(
		`{"id":"g-123","email":"alice@example.com"}`))
	defer srv.Close()

	p := newGoogleProvider(&ProviderConfig{
		Provider: ProviderGoogle, ClientID: "cid", UserinfoURL: srv.URL,
	}, "secret")

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	assert.False(t, id.EmailVerified)
	// name falls back to the email local part
	assert.Equal(t, "alice", id.Name)
}

func TestGoogle_MissingID(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"email":"a@x.com"}`))
	defer srv.Close()

	p := newGoogleProvider(&ProviderConfig{
		Provider: ProviderGoogle, ClientID: "cid", UserinfoURL: srv.URL,
	}, "secret")

	_, err := p.FetchIdentity(context.Background(), "at")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeMissingRequiredField, authErr.Code)
}

func TestGitHub_PublicEmail(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(
		`{"id":99,"login":"bob","name":"Bob B","email":"bob@example.com"}`))
	defer srv.Close()

	p := newGitHubProvider(&ProviderConfig{
		Provider: ProviderGitHub, ClientID: "cid", UserinfoURL: srv.URL,
	}, "secret")

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "99", id.ExternalID)
	assert.Equal(t, "bob@example.com", id.Email)
	assert.Equal(t, "Bob B", id.Name)
	assert.Equal(t, "bob", id.Username)
	assert.True(t, id.EmailVerified)
}

func TestGitHub_SecondaryEmailLookup(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/user", jsonHandler(`{"id":99,"login":"bob"}`))
	mux.Handle("/emails", jsonHandler(`[
		{"email":"old@example.com","primary":false,"verified":true},
		{"email":"bob@example.com","primary":true,"verified":true}
	]`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newGitHubProvider(&ProviderConfig{
		Provider: ProviderGitHub, ClientID: "cid", UserinfoURL: srv.URL + "/user",
	}, "secret")
	p.emailsURL = srv.URL + "/emails"

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	// primary+verified wins over the earlier verified entry
	assert.Equal(t, "bob@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	// no name on profile: falls back to login
	assert.Equal(t, "bob", id.Name)
}

func TestGitHub_FirstVerifiedFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/user", jsonHandler(`{"id":99,"login":"bob"}`))
	mux.Handle("/emails", jsonHandler(`[
		{"email":"unverified@example.com","primary":true,"verified":false},
		{"email":"second@example.com","primary":false,"verified":true}
	]`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newGitHubProvider(&ProviderConfig{
		Provider: ProviderGitHub, ClientID: "cid", UserinfoURL: srv.URL + "/user",
	}, "secret")
	p.emailsURL = srv.URL + "/emails"

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "second@example.com", id.Email)
	assert.True(t, id.EmailVerified)
}

func TestGitHub_NoEmailAtAll(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/user", jsonHandler(`{"id":99,"login":"bob"}`))
	mux.Handle("/emails", jsonHandler(`[]`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newGitHubProvider(&ProviderConfig{
		Provider: ProviderGitHub, ClientID: "cid", UserinfoURL: srv.URL + "/user",
	}, "secret")
	p.emailsURL = srv.URL + "/emails"

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	assert.Empty(t, id.Email)
	assert.False(t, id.EmailVerified)
	// the login handle remains available for email synthesis
	assert.Equal(t, "bob", id.Username)
}

func TestMicrosoft_MailPrecedence(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(
		`{"id":"ms-1","mail":"carol@corp.com","userPrincipalName":"carol@corp.onmicrosoft.com","displayName":"Carol"}`))
	defer srv.Close()

	p := newMicrosoftProvider(&ProviderConfig{
		Provider: ProviderMicrosoft, ClientID: "cid", UserinfoURL: srv.URL,
	}, "secret")

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "carol@corp.com", id.Email)
	assert.Equal(t, "Carol", id.Name)
	assert.True(t, id.EmailVerified)
}

func TestMicrosoft_UserPrincipalNameFallback(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(
		`{"id":"ms-1","userPrincipalName":"carol@corp.onmicrosoft.com"}`))
	defer srv.Close()

	p := newMicrosoftProvider(&ProviderConfig{
		Provider: ProviderMicrosoft, ClientID: "cid", UserinfoURL: srv.URL,
	}, "secret")

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "carol@corp.onmicrosoft.com", id.Email)
	assert.Equal(t, "carol", id.Name)
}

func TestExchangeCode_Success(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(
		`{"access_token":"at-1","token_type":"bearer"}`))
	defer srv.Close()

	p := newGoogleProvider(&ProviderConfig{Provider: ProviderGoogle, ClientID: "cid"}, "secret")
	p.conf.Endpoint.TokenURL = srv.URL

	token, err := p.ExchangeCode(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "at-1", token)
}

func TestExchangeCode_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	p := newGoogleProvider(&ProviderConfig{Provider: ProviderGoogle, ClientID: "cid"}, "secret")
	p.conf.Endpoint.TokenURL = srv.URL

	_, err := p.ExchangeCode(context.Background(), "bad-code")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeTokenExchangeFailed, authErr.Code)
}

func TestExchangeCode_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"access_token":`))
	defer srv.Close()

	p := newGoogleProvider(&ProviderConfig{Provider: ProviderGoogle, ClientID: "cid"}, "secret")
	p.conf.Endpoint.TokenURL = srv.URL

	// a 2xx response the provider garbled is its failure, not the network's
	_, err := p.ExchangeCode(context.Background(), "code")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeTokenExchangeFailed, authErr.Code)
}

func TestExchangeCode_Unreachable(t *testing.T) {
	p := newGoogleProvider(&ProviderConfig{Provider: ProviderGoogle, ClientID: "cid"}, "secret")
	p.conf.Endpoint.TokenURL = "http://127.0.0.1:1/token"

	_, err := p.ExchangeCode(context.Background(), "code")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeNetworkError, authErr.Code)
}

func discoveryServer(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			*hits++
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"issuer": %q,
			"authorization_endpoint": %q,
			"token_endpoint": %q,
			"userinfo_endpoint": %q
		}`, srv.URL, srv.URL+"/authorize", srv.URL+"/token", srv.URL+"/userinfo")
	})
	mux.Handle("/userinfo", jsonHandler(
		`{"sub":"acme-1","email":"dave@acme.example","name":"Dave","email_verified":true}`))
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOIDC_DiscoveryAuthorizationURL(t *testing.T) {
	srv := discoveryServer(t, nil)

	p := newOIDCProvider(&ProviderConfig{
		Provider:     ProviderGenericOIDC,
		ClientID:     "acme-client",
		DiscoveryURL: srv.URL + "/.well-known/openid-configuration",
	}, "secret")

	authURL, err := p.AuthorizationURL(context.Background(), "S1")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL, srv.URL+"/authorize"))
	assert.Equal(t, "acme-client", parsed.Query().Get("client_id"))
	assert.Equal(t, "S1", parsed.Query().Get("state"))
}

func TestOIDC_DiscoveryMemoized(t *testing.T) {
	hits := 0
	srv := discoveryServer(t, &hits)

	p := newOIDCProvider(&ProviderConfig{
		Provider:     ProviderGenericOIDC,
		ClientID:     "cid",
		DiscoveryURL: srv.URL + "/.well-known/openid-configuration",
	}, "secret")

	_, err := p.AuthorizationURL(context.Background(), "S1")
	require.NoError(t, err)
	_, err = p.AuthorizationURL(context.Background(), "S2")
	require.NoError(t, err)
	_, err = p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
}

func TestOIDC_ExplicitEndpointsWinOverDiscovery(t *testing.T) {
	hits := 0
	srv := discoveryServer(t, &hits)

	p := newOIDCProvider(&ProviderConfig{
		Provider:         ProviderGenericOIDC,
		ClientID:         "cid",
		AuthorizationURL: "https://manual.example/authorize",
		DiscoveryURL:     srv.URL + "/.well-known/openid-configuration",
	}, "secret")

	authURL, err := p.AuthorizationURL(context.Background(), "S1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL, "https://manual.example/authorize"))
	// discovery still ran to fill the missing token/userinfo endpoints
	assert.Equal(t, 1, hits)
}

func TestOIDC_NoDiscoveryNoEndpoints(t *testing.T) {
	p := newOIDCProvider(&ProviderConfig{
		Provider: ProviderGenericOIDC,
		ClientID: "cid",
	}, "secret")

	_, err := p.AuthorizationURL(context.Background(), "S1")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeProviderNotConfigured, authErr.Code)
}

func TestOIDC_IdentityMapping(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(
		`{"sub":"s-1","email":"eve@idp.example","preferred_username":"eve"}`))
	defer srv.Close()

	p := newOIDCProvider(&ProviderConfig{
		Provider:         ProviderGenericOIDC,
		ClientID:         "cid",
		AuthorizationURL: "https://idp.example/authorize",
		TokenURL:         "https://idp.example/token",
		UserinfoURL:      srv.URL,
	}, "secret")

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "s-1", id.ExternalID)
	assert.Equal(t, "eve", id.Username)
	// no name claim: preferred_username fills in
	assert.Equal(t, "eve", id.Name)
	// email_verified absent defaults to true for OIDC kinds
	assert.True(t, id.EmailVerified)
}

func TestOIDC_NumericIDFallback(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"id":12345,"username":"frank"}`))
	defer srv.Close()

	p := newOIDCProvider(&ProviderConfig{
		Provider:         ProviderGenericOIDC,
		ClientID:         "cid",
		AuthorizationURL: "https://idp.example/authorize",
		TokenURL:         "https://idp.example/token",
		UserinfoURL:      srv.URL,
	}, "secret")

	id, err := p.FetchIdentity(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "12345", id.ExternalID)
	assert.Equal(t, "frank", id.Username)
}

func TestAuthentik_EndpointDerivation(t *testing.T) {
	p := newOIDCProvider(&ProviderConfig{
		Provider:         ProviderAuthentik,
		ClientID:         "cid",
		AuthorizationURL: "https://auth.example.com/application/o/authorize/",
	}, "secret")

	assert.Equal(t, "https://auth.example.com/application/o/token/", p.conf.Endpoint.TokenURL)
	assert.Equal(t, "https://auth.example.com/application/o/userinfo/", p.userinfoURL)
}

func TestNewProvider_DisabledAndMissingCreds(t *testing.T) {
	box := newTestBox(t)

	_, err := NewProvider(&ProviderConfig{Provider: ProviderGoogle, Enabled: false}, box)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeProviderNotConfigured, authErr.Code)

	_, err = NewProvider(&ProviderConfig{Provider: ProviderGoogle, Enabled: true}, box)
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeProviderNotConfigured, authErr.Code)
}

func TestSynthesizeEmail(t *testing.T) {
	id := &Identity{Username: "bob", ExternalID: "99"}
	require.True(t, id.SynthesizeEmail("github"))
	assert.Equal(t, "bob@github.local", id.Email)

	id = &Identity{ExternalID: "99"}
	require.True(t, id.SynthesizeEmail("github"))
	assert.Equal(t, "99@github.local", id.Email)

	id = &Identity{Email: "real@example.com", Username: "bob"}
	require.True(t, id.SynthesizeEmail("github"))
	assert.Equal(t, "real@example.com", id.Email)

	id = &Identity{}
	assert.False(t, id.SynthesizeEmail("github"))
}
