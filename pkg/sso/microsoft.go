package sso

import (
	"context"

	"golang.org/x/oauth2"
)

var microsoftEndpoint = oauth2.Endpoint{
	AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
	TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
}

const microsoftUserinfoURL = "https://graph.microsoft.com/v1.0/me"

type microsoftProvider struct {
	oauthBase
	userinfoURL string
}

func newMicrosoftProvider(cfg *ProviderConfig, secret string) *microsoftProvider {
	scopes := cfg.ScopeList()
	if len(scopes) == 0 {
		scopes = []string{"User.Read"}
	}
	userinfoURL := cfg.UserinfoURL
	if userinfoURL == "" {
		userinfoURL = microsoftUserinfoURL
	}
	return &microsoftProvider{
		oauthBase: oauthBase{
			name: ProviderMicrosoft,
			conf: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: secret,
				RedirectURL:  cfg.RedirectURI,
				Scopes:       scopes,
				Endpoint:     microsoftEndpoint,
			},
			client: newHTTPClient(cfg.InsecureSkipVerify),
		},
		userinfoURL: userinfoURL,
	}
}

func (p *microsoftProvider) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	var info struct {
		ID                string `json:"id"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		DisplayName       string `json:"displayName"`
	}
	if err := p.getJSON(ctx, p.userinfoURL, accessToken, &info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, ErrMissingRequiredField("user id")
	}

	email := info.Mail
	if email == "" {
		email = info.UserPrincipalName
	}

	name := info.DisplayName
	if name == "" && email != "" {
		name = emailLocalPart(email)
	}

	// Azure AD accounts are directory-managed; the address is pre-verified.
	return &Identity{
		ExternalID:    info.ID,
		Email:         email,
		Name:          name,
		Username:      emailLocalPart(email),
		EmailVerified: true,
	}, nil
}
