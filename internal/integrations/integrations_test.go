package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/iliyamo/taskflow/internal/config"
	"github.com/iliyamo/taskflow/internal/database/dbtest"
	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/repository"
	"github.com/iliyamo/taskflow/internal/service"
)

const appURL = "http://app.local"

type harness struct {
	conns   *Connections
	repo    *repository.ConnectionRepo
	sealer  *Sealer
	user    model.User
	dropped *[]string
}

type dropRecorder struct{ paths *[]string }

func (d dropRecorder) Invalidate(_ context.Context, paths ...string) error {
	*d.paths = append(*d.paths, paths...)
	return nil
}

func newHarness(t *testing.T, tokenHandler http.HandlerFunc) harness {
	srv := httptest.NewServer(tokenHandler)
	t.Cleanup(srv.Close)

	db := dbtest.New(t)
	users := repository.NewUserRepo(db)
	u := model.User{ExternalID: "user_1", Email: "u@example.com", Name: "U", Role: model.RoleEmployee}
	require.NoError(t, users.Create(context.Background(), &u))

	cfg := config.OAuthConfig{
		RedirectBase: "http://api.local",
		Slack:        config.ProviderCredentials{ClientID: "id", ClientSecret: "secret"},
		Notion:       config.ProviderCredentials{ClientID: "id", ClientSecret: "secret"},
	}
	ep := oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	reg := NewRegistry(cfg, WithEndpoint(model.ProviderSlack, ep), WithEndpoint(model.ProviderNotion, ep))

	sealer, err := NewSealer("", "jwt-secret")
	require.NoError(t, err)
	repo := repository.NewConnectionRepo(db)
	dropped := &[]string{}
	return harness{
		conns:   NewConnections(reg, repo, sealer, dropRecorder{dropped}, "state-secret", appURL, zap.NewNop()),
		repo:    repo,
		sealer:  sealer,
		user:    u,
		dropped: dropped,
	}
}

func tokenJSON(body map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

func redirectQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	require.True(t, strings.HasPrefix(raw, appURL+"/connections?"), raw)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query()
}

func TestCallbackStoresConnection(t *testing.T) {
	h := newHarness(t, tokenJSON(map[string]any{
		"ok": true, "access_token": "xoxb-123", "token_type": "bearer",
		"team": map[string]any{"id": "T1", "name": "Acme"},
	}))
	ctx := context.Background()

	authURL, state, err := h.conns.Start(h.user, "slack")
	require.NoError(t, err)
	assert.Contains(t, authURL, "state="+url.QueryEscape(state))
	assert.Contains(t, authURL, url.QueryEscape("http://api.local/api/callback/slack"))

	q := redirectQuery(t, h.conns.Callback(ctx, "slack", url.Values{"code": {"abc"}, "state": {state}}, state))
	assert.Equal(t, "connected", q.Get("slack"))
	assert.Equal(t, "Acme", q.Get("team_name"))
	assert.Equal(t, []string{"/v1/connections"}, *h.dropped, "listing is dropped from the cache")

	list, err := h.repo.ListByUser(ctx, h.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "T1", list[0].AccountID)
	assert.NotContains(t, list[0].TokenCiphertext, "xoxb")
	plain, err := h.sealer.Open(list[0].TokenCiphertext)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-123", plain)

	status, err := h.conns.List(ctx, h.user)
	require.NoError(t, err)
	require.Len(t, status, 3)
	assert.False(t, status[0].Configured, "discord has no credentials")
	assert.NotNil(t, status[2].Connection)

	require.NoError(t, h.conns.Delete(ctx, h.user, "slack"))
	assert.Len(t, *h.dropped, 2)
	assert.ErrorIs(t, h.conns.Delete(ctx, h.user, "slack"), service.ErrNotFound)
	assert.Len(t, *h.dropped, 2)
}

func TestNotionCallbackReportsWorkspace(t *testing.T) {
	h := newHarness(t, tokenJSON(map[string]any{
		"access_token": "secret_abc", "token_type": "bearer",
		"workspace_id": "W1", "workspace_name": "Docs",
	}))
	_, state, err := h.conns.Start(h.user, "notion")
	require.NoError(t, err)

	q := redirectQuery(t, h.conns.Callback(context.Background(), "notion", url.Values{"code": {"abc"}, "state": {state}}, state))
	assert.Equal(t, "connected", q.Get("notion"))
	assert.Equal(t, "Docs", q.Get("workspace_name"))
}

func TestCallbackErrorCodes(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	})
	ctx := context.Background()
	_, state, err := h.conns.Start(h.user, "slack")
	require.NoError(t, err)
	_, notionState, err := h.conns.Start(h.user, "notion")
	require.NoError(t, err)

	cases := []struct {
		name     string
		provider string
		query    url.Values
		cookie   string
		want     string
	}{
		{"missing code", "slack", url.Values{"state": {state}}, state, "slack_no_code"},
		{"provider error", "notion", url.Values{"error": {"access_denied"}}, "", "notion_access_denied"},
		{"state mismatch", "slack", url.Values{"code": {"c"}, "state": {state}}, "other", "slack_invalid_state"},
		{"state for other provider", "slack", url.Values{"code": {"c"}, "state": {notionState}}, notionState, "slack_invalid_state"},
		{"exchange rejected", "slack", url.Values{"code": {"c"}, "state": {state}}, state, "slack_exchange_failed"},
		{"not configured", "discord", url.Values{"code": {"c"}}, "", "discord_not_configured"},
		{"unknown provider", "myspace", url.Values{}, "", "unknown_provider"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := redirectQuery(t, h.conns.Callback(ctx, tc.provider, tc.query, tc.cookie))
			assert.Equal(t, tc.want, q.Get("error"))
		})
	}
}

func TestStartRejectsUnconfiguredProvider(t *testing.T) {
	h := newHarness(t, tokenJSON(map[string]any{}))
	_, _, err := h.conns.Start(h.user, "discord")
	assert.ErrorIs(t, err, service.ErrConflict)
	_, _, err = h.conns.Start(h.user, "fax")
	assert.ErrorIs(t, err, service.ErrValidation)
	_, _, err = h.conns.Start(model.User{}, "slack")
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(strings.Repeat("ab", 32), "")
	require.NoError(t, err)
	sealed, err := s.Seal("token")
	require.NoError(t, err)
	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token", plain)

	other, err := NewSealer(strings.Repeat("cd", 32), "")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)

	_, err = NewSealer("abcd", "")
	assert.Error(t, err)
	_, err = NewSealer("", "")
	assert.Error(t, err)
}

func TestErrorCodeNormalisation(t *testing.T) {
	assert.Equal(t, "access_denied", errorCode("access_denied"))
	assert.Equal(t, "user_cancelled_login", errorCode("User Cancelled Login!"))
	assert.Equal(t, "error", errorCode("!!!"))
}
