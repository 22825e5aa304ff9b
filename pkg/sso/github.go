package sso

import (
	"context"
	"strconv"

	"golang.org/x/oauth2"
)

var githubEndpoint = oauth2.Endpoint{
	AuthURL:  "https://github.com/login/oauth/authorize",
	TokenURL: "https://github.com/login/oauth/access_token",
}

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

type githubProvider struct {
	oauthBase
	userURL   string
	emailsURL string
}

func newGitHubProvider(cfg *ProviderConfig, secret string) *githubProvider {
	scopes := cfg.ScopeList()
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	userURL := cfg.UserinfoURL
	if userURL == "" {
		userURL = githubUserURL
	}
	return &githubProvider{
		oauthBase: oauthBase{
			name: ProviderGitHub,
			conf: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: secret,
				RedirectURL:  cfg.RedirectURI,
				Scopes:       scopes,
				Endpoint:     githubEndpoint,
			},
			client: newHTTPClient(cfg.InsecureSkipVerify),
		},
		userURL:   userURL,
		emailsURL: githubEmailsURL,
	}
}

func (p *githubProvider) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	var info struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := p.getJSON(ctx, p.userURL, accessToken, &info); err != nil {
		return nil, err
	}
	if info.ID == 0 {
		return nil, ErrMissingRequiredField("user id")
	}

	email := info.Email
	verified := email != ""
	if email == "" {
		// Profile email is often hidden; the emails endpoint lists the
		// account's addresses with their verification flags.
		email, verified = p.lookupEmail(ctx, accessToken)
	}

	name := info.Name
	if name == "" {
		name = info.Login
	}
	if name == "" {
		name = "User"
	}

	return &Identity{
		ExternalID:    strconv.FormatInt(info.ID, 10),
		Email:         email,
		Name:          name,
		Username:      info.Login,
		EmailVerified: verified,
	}, nil
}

// lookupEmail picks the primary verified address, falling back to the first
// verified one. A failed lookup leaves the identity emailless rather than
// failing the whole login.
func (p *githubProvider) lookupEmail(ctx context.Context, accessToken string) (string, bool) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.getJSON(ctx, p.emailsURL, accessToken, &emails); err != nil {
		return "", false
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true
		}
	}
	return "", false
}
