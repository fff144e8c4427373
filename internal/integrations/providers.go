// Package integrations connects user accounts to Discord, Notion and Slack
// workspaces through the OAuth authorization code flow.
package integrations

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/iliyamo/taskflow/internal/config"
	"github.com/iliyamo/taskflow/internal/model"
)

// Account is what a successful exchange tells us about the connected
// workspace.  Params are appended to the success redirect.
type Account struct {
	ID     string
	Name   string
	Params url.Values
}

// Provider is one configured OAuth integration.
type Provider struct {
	Name   model.Provider
	OAuth  oauth2.Config
	Extra  []oauth2.AuthCodeOption // added to the authorization URL
	Scopes string                  // stored with the connection

	account func(tok *oauth2.Token, callback url.Values) Account
}

// Endpoints of the supported providers.
var (
	DiscordEndpoint = oauth2.Endpoint{
		AuthURL:   "https://discord.com/oauth2/authorize",
		TokenURL:  "https://discord.com/api/oauth2/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	NotionEndpoint = oauth2.Endpoint{
		AuthURL:   "https://api.notion.com/v1/oauth/authorize",
		TokenURL:  "https://api.notion.com/v1/oauth/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
	SlackEndpoint = oauth2.Endpoint{
		AuthURL:   "https://slack.com/oauth/v2/authorize",
		TokenURL:  "https://slack.com/api/oauth.v2.access",
		AuthStyle: oauth2.AuthStyleInParams,
	}
)

// Registry holds the providers that have credentials.
type Registry struct {
	providers map[model.Provider]*Provider
}

// Option adjusts a registry while it is built.
type Option func(map[model.Provider]*Provider)

// WithEndpoint points a provider at another OAuth server.
func WithEndpoint(name model.Provider, ep oauth2.Endpoint) Option {
	return func(m map[model.Provider]*Provider) {
		if p, ok := m[name]; ok {
			p.OAuth.Endpoint = ep
		}
	}
}

// NewRegistry builds a provider for every credential pair in cfg.
// Callbacks are served under <RedirectBase>/api/callback/<provider>.
func NewRegistry(cfg config.OAuthConfig, opts ...Option) *Registry {
	m := map[model.Provider]*Provider{}
	add := func(name model.Provider, creds config.ProviderCredentials, ep oauth2.Endpoint, scopes []string,
		extra []oauth2.AuthCodeOption, account func(*oauth2.Token, url.Values) Account) {
		if !creds.Configured() {
			return
		}
		m[name] = &Provider{
			Name: name,
			OAuth: oauth2.Config{
				ClientID:     creds.ClientID,
				ClientSecret: creds.ClientSecret,
				Endpoint:     ep,
				RedirectURL:  fmt.Sprintf("%s/api/callback/%s", cfg.RedirectBase, name),
				Scopes:       scopes,
			},
			Extra:   extra,
			Scopes:  strings.Join(scopes, " "),
			account: account,
		}
	}
	add(model.ProviderDiscord, cfg.Discord, DiscordEndpoint, []string{"identify", "guilds", "bot"},
		[]oauth2.AuthCodeOption{oauth2.SetAuthURLParam("permissions", "2048")}, discordAccount)
	add(model.ProviderNotion, cfg.Notion, NotionEndpoint, nil,
		[]oauth2.AuthCodeOption{oauth2.SetAuthURLParam("owner", "user")}, notionAccount)
	add(model.ProviderSlack, cfg.Slack, SlackEndpoint, []string{"chat:write", "channels:read"},
		nil, slackAccount)
	for _, o := range opts {
		o(m)
	}
	return &Registry{providers: m}
}

// Get returns the configured provider.
func (r *Registry) Get(name model.Provider) (*Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Configured lists the providers that can be connected.
func (r *Registry) Configured() []model.Provider {
	var out []model.Provider
	for _, name := range []model.Provider{model.ProviderDiscord, model.ProviderNotion, model.ProviderSlack} {
		if _, ok := r.providers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Discord reports the guild the bot was added to, either in the token
// response or in the callback query.
func discordAccount(tok *oauth2.Token, q url.Values) Account {
	a := Account{Params: url.Values{}}
	if g, ok := tok.Extra("guild").(map[string]any); ok {
		a.ID, a.Name = str(g["id"]), str(g["name"])
	}
	if a.ID == "" {
		a.ID = q.Get("guild_id")
	}
	if a.ID != "" {
		a.Params.Set("guild_id", a.ID)
	}
	return a
}

func notionAccount(tok *oauth2.Token, _ url.Values) Account {
	a := Account{ID: str(tok.Extra("workspace_id")), Name: str(tok.Extra("workspace_name")), Params: url.Values{}}
	if a.Name != "" {
		a.Params.Set("workspace_name", a.Name)
	}
	return a
}

func slackAccount(tok *oauth2.Token, _ url.Values) Account {
	a := Account{Params: url.Values{}}
	if t, ok := tok.Extra("team").(map[string]any); ok {
		a.ID, a.Name = str(t["id"]), str(t["name"])
	}
	if a.Name != "" {
		a.Params.Set("team_name", a.Name)
	}
	return a
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
