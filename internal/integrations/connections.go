package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/policy"
	"github.com/iliyamo/taskflow/internal/repository"
	"github.com/iliyamo/taskflow/internal/service"
	"github.com/iliyamo/taskflow/internal/utils"
)

// StateTTL bounds how long an authorization round trip may take.
const StateTTL = 10 * time.Minute

// cachedPath is the listing dropped from the response cache on change.
const cachedPath = "/v1/connections"

// Connections runs the OAuth flow and stores the resulting connections.
// cache may be nil.
type Connections struct {
	providers *Registry
	conns     *repository.ConnectionRepo
	sealer    *Sealer
	cache     service.Invalidator
	secret    string // signs state tokens
	appURL    string
	log       *zap.Logger
}

func NewConnections(providers *Registry, conns *repository.ConnectionRepo, sealer *Sealer,
	cache service.Invalidator, stateSecret, appURL string, log *zap.Logger) *Connections {
	return &Connections{
		providers: providers,
		conns:     conns,
		sealer:    sealer,
		cache:     cache,
		secret:    stateSecret,
		appURL:    strings.TrimRight(appURL, "/"),
		log:       log,
	}
}

// Status is one row of the connections page.
type Status struct {
	Provider   model.Provider    `json:"provider"`
	Configured bool              `json:"configured"`
	Connection *model.Connection `json:"connection,omitempty"`
}

// List returns the caller's connection state for every provider.
func (s *Connections) List(ctx context.Context, caller model.User) ([]Status, error) {
	if err := s.allowed(caller); err != nil {
		return nil, err
	}
	conns, err := s.conns.ListByUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	byProvider := make(map[model.Provider]model.Connection, len(conns))
	for _, c := range conns {
		byProvider[c.Provider] = c
	}
	out := make([]Status, 0, 3)
	for _, name := range []model.Provider{model.ProviderDiscord, model.ProviderNotion, model.ProviderSlack} {
		st := Status{Provider: name}
		_, st.Configured = s.providers.Get(name)
		if c, ok := byProvider[name]; ok {
			st.Connection = &c
		}
		out = append(out, st)
	}
	return out, nil
}

// Delete disconnects the caller from provider.
func (s *Connections) Delete(ctx context.Context, caller model.User, provider string) error {
	if err := s.allowed(caller); err != nil {
		return err
	}
	name := model.Provider(strings.ToLower(provider))
	if !name.Valid() {
		return fmt.Errorf("%w: unknown provider %q", service.ErrValidation, provider)
	}
	if err := s.conns.Delete(ctx, caller.ID, name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: no %s connection", service.ErrNotFound, name)
		}
		return err
	}
	s.log.Info("connection removed", zap.Uint64("user_id", caller.ID), zap.String("provider", string(name)))
	s.invalidate(ctx)
	return nil
}

// Start returns the provider authorization URL and the state token the
// caller must present again, as a cookie, on the callback.
func (s *Connections) Start(caller model.User, provider string) (authURL, state string, err error) {
	if err := s.allowed(caller); err != nil {
		return "", "", err
	}
	name := model.Provider(strings.ToLower(provider))
	if !name.Valid() {
		return "", "", fmt.Errorf("%w: unknown provider %q", service.ErrValidation, provider)
	}
	p, ok := s.providers.Get(name)
	if !ok {
		return "", "", fmt.Errorf("%w: %s is not configured", service.ErrConflict, name)
	}
	state, err = utils.NewStateToken(s.secret, caller.ID, string(name), StateTTL)
	if err != nil {
		return "", "", err
	}
	return p.OAuth.AuthCodeURL(state, p.Extra...), state, nil
}

// Callback finishes the flow and returns where the browser goes next.
// Failures never surface as errors: they become an error code on the
// connections page.
func (s *Connections) Callback(ctx context.Context, provider string, q url.Values, cookieState string) string {
	name := model.Provider(strings.ToLower(provider))
	if !name.Valid() {
		return s.failure("unknown_provider")
	}
	prefix := string(name) + "_"
	p, ok := s.providers.Get(name)
	if !ok {
		return s.failure(prefix + "not_configured")
	}
	if e := q.Get("error"); e != "" {
		s.log.Info("provider declined authorization", zap.String("provider", string(name)), zap.String("error", e))
		return s.failure(prefix + errorCode(e))
	}
	code := q.Get("code")
	if code == "" {
		return s.failure(prefix + "no_code")
	}
	state := q.Get("state")
	if state == "" || state != cookieState {
		return s.failure(prefix + "invalid_state")
	}
	claims, err := utils.ParseStateToken(s.secret, state, string(name))
	if err != nil {
		s.log.Info("oauth state rejected", zap.String("provider", string(name)), zap.Error(err))
		return s.failure(prefix + "invalid_state")
	}

	tok, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		s.log.Warn("oauth exchange failed", zap.String("provider", string(name)), zap.Error(err))
		return s.failure(prefix + "exchange_failed")
	}
	sealed, err := s.sealer.Seal(tok.AccessToken)
	if err != nil {
		s.log.Error("sealing provider token failed", zap.Error(err))
		return s.failure(prefix + "exchange_failed")
	}
	acct := p.account(tok, q)
	c := model.Connection{
		UserID:          claims.UserID,
		Provider:        name,
		AccountID:       acct.ID,
		AccountName:     acct.Name,
		TokenCiphertext: sealed,
		Scopes:          p.Scopes,
	}
	if err := s.conns.Upsert(ctx, &c); err != nil {
		s.log.Error("storing connection failed", zap.String("provider", string(name)), zap.Error(err))
		return s.failure(prefix + "exchange_failed")
	}
	s.log.Info("connection stored", zap.Uint64("user_id", c.UserID), zap.String("provider", string(name)))
	s.invalidate(ctx)

	params := url.Values{}
	params.Set(string(name), "connected")
	for k, vs := range acct.Params {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	return s.appURL + "/connections?" + params.Encode()
}

func (s *Connections) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cachedPath); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("path", cachedPath), zap.Error(err))
	}
}

func (s *Connections) failure(code string) string {
	return s.appURL + "/connections?" + url.Values{"error": {code}}.Encode()
}

func (s *Connections) allowed(caller model.User) error {
	if caller.ID == 0 {
		return service.ErrUnauthenticated
	}
	if !policy.Can(caller.Role, policy.ConnectionManage, policy.Owned(true)) {
		return fmt.Errorf("%w to manage connections", service.ErrForbidden)
	}
	return nil
}

var unsafeCode = regexp.MustCompile(`[^a-z0-9_]+`)

// errorCode normalises a provider error into the code suffix.
func errorCode(e string) string {
	c := unsafeCode.ReplaceAllString(strings.ToLower(e), "_")
	c = strings.Trim(c, "_")
	if len(c) > 64 {
		c = c[:64]
	}
	if c == "" {
		return "error"
	}
	return c
}
