package config

import "strings"

// ProviderCredentials is an OAuth client id/secret pair for one provider.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both halves of the pair are present.
func (p ProviderCredentials) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// OAuthConfig groups the third-party connection credentials.  RedirectBase
// is the public URL of this API; callbacks are served under
// <RedirectBase>/api/callback/<provider>.
type OAuthConfig struct {
	RedirectBase string
	Discord      ProviderCredentials
	Notion       ProviderCredentials
	Slack        ProviderCredentials
}

func loadOAuthConfig(r reader) OAuthConfig {
	return OAuthConfig{
		RedirectBase: strings.TrimRight(r.str("OAUTH_REDIRECT_BASE", "http://localhost:8080"), "/"),
		Discord: ProviderCredentials{
			ClientID:     r.str("DISCORD_CLIENT_ID", ""),
			ClientSecret: r.str("DISCORD_CLIENT_SECRET", ""),
		},
		Notion: ProviderCredentials{
			ClientID:     r.str("NOTION_CLIENT_ID", ""),
			ClientSecret: r.str("NOTION_CLIENT_SECRET", ""),
		},
		Slack: ProviderCredentials{
			ClientID:     r.str("SLACK_CLIENT_ID", ""),
			ClientSecret: r.str("SLACK_CLIENT_SECRET", ""),
		},
	}
}
