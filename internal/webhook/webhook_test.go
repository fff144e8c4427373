package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/database/dbtest"
	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/repository"
	"github.com/iliyamo/taskflow/internal/service"
)

var secret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("super-secret-signing-key"))

func fixedVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v, err := NewVerifier(secret)
	require.NoError(t, err)
	v.now = func() time.Time { return now }
	return v
}

func TestVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := fixedVerifier(t, now)
	body := []byte(`{"type":"user.created"}`)
	headers := func(ts time.Time, sig string) http.Header {
		h := http.Header{}
		h.Set(HeaderID, "msg_1")
		h.Set(HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
		h.Set(HeaderSignature, sig)
		return h
	}
	good := v.Sign("msg_1", now, body)

	assert.NoError(t, v.Verify(headers(now, good), body))
	assert.NoError(t, v.Verify(headers(now, "v1,bm9wZQ== "+good), body), "any listed signature may match")
	assert.ErrorIs(t, v.Verify(headers(now, good), []byte(`{"type":"user.deleted"}`)), ErrBadSignature)
	assert.ErrorIs(t, v.Verify(headers(now, "v1,AAAA"), body), ErrBadSignature)
	assert.ErrorIs(t, v.Verify(headers(now.Add(-6*time.Minute), v.Sign("msg_1", now.Add(-6*time.Minute), body)), body), ErrStale)
	assert.ErrorIs(t, v.Verify(http.Header{}, body), ErrMissingHeaders)

	_, err := NewVerifier("whsec_")
	assert.Error(t, err)
	_, err = NewVerifier("whsec_***")
	assert.Error(t, err)
}

type pushes struct {
	mu   sync.Mutex
	seen map[string]string
}

func clerkServer(t *testing.T) (*httptest.Server, *pushes) {
	p := &pushes{seen: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/users/"), "/metadata")
		var body struct {
			PublicMetadata map[string]string `json:"public_metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		p.seen[id] = body.PublicMetadata["role"]
		p.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, p
}

func TestClerkClientPushRole(t *testing.T) {
	srv, p := clerkServer(t)
	require.NoError(t, NewClerkClient(srv.URL, "sk_test").PushRole(context.Background(), "user_1", model.RoleManager))
	assert.Equal(t, "MANAGER", p.seen["user_1"])

	assert.Error(t, NewClerkClient(srv.URL, "sk_wrong").PushRole(context.Background(), "user_1", model.RoleManager))

	disabled := NewClerkClient(srv.URL, "")
	assert.NoError(t, disabled.PushRole(context.Background(), "user_1", model.RoleManager))
}

type setup struct {
	e      *echo.Echo
	h      *Handler
	v      *Verifier
	users  *repository.UserRepo
	pushes *pushes
}

func newSetup(t *testing.T) setup {
	srv, p := clerkServer(t)
	users := repository.NewUserRepo(dbtest.New(t))
	svc := service.NewUserService(users, NewClerkClient(srv.URL, "sk_test"), service.Effects{Log: zap.NewNop()})
	v := fixedVerifier(t, time.Now())
	return setup{e: echo.New(), h: NewHandler(v, svc, zap.NewNop()), v: v, users: users, pushes: p}
}

func (s setup) post(t *testing.T, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/clerk", strings.NewReader(body))
	if sign {
		now := time.Now()
		req.Header.Set(HeaderID, "msg_"+strconv.FormatInt(now.UnixNano(), 10))
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
		req.Header.Set(HeaderSignature, s.v.Sign(req.Header.Get(HeaderID), now, []byte(body)))
	}
	rec := httptest.NewRecorder()
	require.NoError(t, s.h.Handle(s.e.NewContext(req, rec)))
	return rec
}

const created = `{"type":"user.created","data":{"id":"user_1","first_name":"Ann","last_name":"Lee",
 "primary_email_address_id":"e2","email_addresses":[{"id":"e1","email_address":"old@example.com"},{"id":"e2","email_address":"Ann@Example.com"}],
 "public_metadata":{}}}`

func TestHandleUserLifecycle(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	rec := s.post(t, created, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	u, err := s.users.GetByExternalID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", u.Name)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, model.RoleEmployee, u.Role)
	assert.Equal(t, "EMPLOYEE", s.pushes.seen["user_1"])

	rec = s.post(t, `{"type":"user.updated","data":{"id":"user_1","first_name":"Ann","public_metadata":{"role":"MANAGER"}}}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	u, err = s.users.GetByExternalID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, u.Role)

	rec = s.post(t, `{"type":"session.created","data":{}}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.post(t, `{"type":"user.deleted","data":{"id":"user_1","deleted":true}}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = s.users.GetByExternalID(ctx, "user_1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestHandleRejectsUnsigned(t *testing.T) {
	s := newSetup(t)

	rec := s.post(t, created, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/clerk", strings.NewReader(created))
	req.Header.Set(HeaderID, "msg_1")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(HeaderSignature, "v1,Zm9yZ2Vk")
	out := httptest.NewRecorder()
	require.NoError(t, s.h.Handle(s.e.NewContext(req, out)))
	assert.Equal(t, http.StatusUnauthorized, out.Code)
	body, _ := io.ReadAll(out.Body)
	assert.Contains(t, string(body), `"success":false`)

	_, err := s.users.GetByExternalID(context.Background(), "user_1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
