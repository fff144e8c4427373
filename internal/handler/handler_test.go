package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/config"
	"github.com/iliyamo/taskflow/internal/database/dbtest"
	"github.com/iliyamo/taskflow/internal/handler"
	"github.com/iliyamo/taskflow/internal/integrations"
	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/realtime"
	"github.com/iliyamo/taskflow/internal/repository"
	"github.com/iliyamo/taskflow/internal/router"
	"github.com/iliyamo/taskflow/internal/service"
	"github.com/iliyamo/taskflow/internal/utils"
)

const (
	secret = "handler-secret"
	appURL = "http://app.test"
)

type app struct {
	e     *echo.Echo
	hub   *realtime.Hub
	users *repository.UserRepo
}

func newApp(t *testing.T) *app {
	t.Helper()
	db := dbtest.New(t)
	log := zap.NewNop()
	hub := realtime.NewHub(log, 0)
	t.Cleanup(hub.Close)
	fx := service.Effects{Bus: hub, Log: log}

	users := repository.NewUserRepo(db)
	tasks := repository.NewTaskRepo(db)
	projects := repository.NewProjectRepo(db)
	teams := repository.NewTeamRepo(db)
	notes := service.NewNotificationService(repository.NewNotificationRepo(db), users, fx)
	people := service.NewUserService(users, nil, fx)

	sealer, err := integrations.NewSealer("", secret)
	require.NoError(t, err)
	registry := integrations.NewRegistry(config.OAuthConfig{RedirectBase: "http://api.test"})
	conns := integrations.NewConnections(registry, repository.NewConnectionRepo(db), sealer, nil, secret, appURL, log)

	h := router.Handlers{
		Tasks: handler.NewTaskHandler(service.NewTaskService(tasks, users, projects, notes, fx), log),
		Projects: handler.NewProjectHandler(
			service.NewProjectService(projects, tasks, users, teams, fx),
			service.NewCommentService(repository.NewCommentRepo(db), projects, notes, fx),
			service.NewMeetingService(repository.NewMeetingRepo(db), projects, notes, fx),
			log),
		Teams:         handler.NewTeamHandler(service.NewTeamService(teams, users, nil, fx), log),
		Notifications: handler.NewNotificationHandler(notes, log),
		Time:          handler.NewTimeHandler(service.NewTimeService(repository.NewTimeEntryRepo(db), tasks, fx), log),
		Users:         handler.NewUserHandler(people, log),
		App:           &handler.AppHandler{UploadPublicKey: "pk_upload", Providers: registry},
		Connections:   handler.NewConnectionHandler(conns, false, log),
		Realtime:      handler.NewRealtimeHandler(hub, context.Background(), log),
	}
	e := echo.New()
	router.Register(e, h, router.Auth{
		JWT:    middleware.JWTAuth(secret),
		Caller: middleware.LoadCaller(people, log),
	})
	return &app{e: e, hub: hub, users: users}
}

func (a *app) user(t *testing.T, ext string, role model.Role) (model.User, string) {
	t.Helper()
	u := model.User{ExternalID: ext, Email: ext + "@example.com", Name: ext, Role: role}
	require.NoError(t, a.users.Create(context.Background(), &u))
	tok, err := utils.NewAccessToken(secret, ext, time.Hour)
	require.NoError(t, err)
	return u, tok.Token
}

type reply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (a *app) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, reply) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var r reply
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	}
	return rec, r
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec, _ := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	a := newApp(t)
	_, mgr := a.user(t, "mgr", model.RoleManager)
	_, emp := a.user(t, "emp", model.RoleEmployee)

	rec, r := a.do(t, http.MethodPost, "/v1/tasks", mgr, map[string]any{"title": "Ship it", "priority": "HIGH"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, r.Success)
	task := decode[model.Task](t, r.Data)
	assert.Equal(t, "Ship it", task.Title)
	assert.Equal(t, model.PriorityHigh, task.Priority)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"no token", http.MethodGet, "/v1/tasks", "", nil, http.StatusUnauthorized},
		{"employee delete", http.MethodDelete, fmt.Sprintf("/v1/tasks/%d", task.ID), emp, nil, http.StatusForbidden},
		{"missing task", http.MethodGet, "/v1/tasks/9999", mgr, nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/tasks/abc", mgr, nil, http.StatusBadRequest},
		{"bad priority", http.MethodPost, "/v1/tasks", mgr, map[string]any{"title": "x", "priority": "URGENT"}, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/v1/tasks", mgr, "not an object", http.StatusBadRequest},
		{"admin route", http.MethodPatch, "/v1/users/1/role", mgr, map[string]any{"role": "ADMIN"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, r := a.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.False(t, r.Success)
			assert.NotEmpty(t, r.Error)
		})
	}

	rec, _ = a.do(t, http.MethodGet, fmt.Sprintf("/v1/tasks/%d", task.ID), mgr, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "task survives the rejected delete")
}

func TestAssignmentFlow(t *testing.T) {
	a := newApp(t)
	_, mgr := a.user(t, "mgr", model.RoleManager)
	emp, empTok := a.user(t, "emp", model.RoleEmployee)

	_, r := a.do(t, http.MethodPost, "/v1/tasks", mgr, map[string]any{"title": "Write docs"})
	task := decode[model.Task](t, r.Data)
	path := fmt.Sprintf("/v1/tasks/%d", task.ID)

	rec, r := a.do(t, http.MethodPost, path+"/assign", mgr, map[string]any{"user_id": emp.ID})
	require.Equal(t, http.StatusOK, rec.Code, r.Error)
	assert.Equal(t, model.StatusAssigned, decode[model.Task](t, r.Data).Status)

	_, r = a.do(t, http.MethodGet, "/v1/notifications?unread=true", empTok, nil)
	inbox := decode[struct {
		Items  []model.Notification `json:"items"`
		Unread int                  `json:"unread"`
	}](t, r.Data)
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, 1, inbox.Unread)
	assert.Equal(t, model.NotifyTaskAssigned, inbox.Items[0].Type)

	for _, step := range []string{"/accept", "/start"} {
		rec, r = a.do(t, http.MethodPost, path+step, empTok, nil)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", step, r.Error)
	}
	assert.Equal(t, model.StatusInProgress, decode[model.Task](t, r.Data).Status)

	rec, _ = a.do(t, http.MethodPost, "/v1/time/start", empTok, map[string]any{"task_id": task.ID})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec, r = a.do(t, http.MethodPost, "/v1/time/start", empTok, map[string]any{"task_id": task.ID})
	assert.Equal(t, http.StatusConflict, rec.Code, r.Error)
	rec, _ = a.do(t, http.MethodPost, "/v1/time/stop", empTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, r = a.do(t, http.MethodPatch, path+"/status", empTok, map[string]any{"status": "DONE"})
	require.Equal(t, http.StatusOK, rec.Code, r.Error)
	assert.Equal(t, model.StatusDone, decode[model.Task](t, r.Data).Status)

	rec, r = a.do(t, http.MethodPost, "/v1/notifications/read-all", empTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1}`, string(r.Data))
}

func TestShell(t *testing.T) {
	a := newApp(t)
	_, mgr := a.user(t, "mgr", model.RoleManager)
	_, client := a.user(t, "client", model.RoleClient)

	rec, _ := a.do(t, http.MethodGet, "/v1/dashboard", client, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/client", rec.Header().Get("Location"))

	_, r := a.do(t, http.MethodGet, "/v1/navigation", mgr, nil)
	nav := decode[struct {
		Role  model.Role `json:"role"`
		Home  string     `json:"home"`
		Items []struct {
			Path string `json:"path"`
		} `json:"items"`
	}](t, r.Data)
	assert.Equal(t, model.RoleManager, nav.Role)
	assert.Equal(t, "/manager", nav.Home)
	assert.NotEmpty(t, nav.Items)

	_, r = a.do(t, http.MethodGet, "/v1/config/public", mgr, nil)
	assert.JSONEq(t, `{"upload_public_key":"pk_upload","providers":[]}`, string(r.Data))
}

func TestConnections(t *testing.T) {
	a := newApp(t)
	_, mgr := a.user(t, "mgr", model.RoleManager)

	rec, r := a.do(t, http.MethodGet, "/v1/connections", mgr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]integrations.Status](t, r.Data), 3)

	rec, _ = a.do(t, http.MethodGet, "/v1/connections/slack/start", mgr, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = a.do(t, http.MethodGet, "/api/callback/slack?code=abc&state=xyz", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "slack_not_configured", loc.Query().Get("error"))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), handler.StateCookie+"=;")
}

func TestRealtime(t *testing.T) {
	a := newApp(t)
	_, mgr := a.user(t, "mgr", model.RoleManager)

	rec, _ := a.do(t, http.MethodGet, "/v1/realtime?channels=notifications-someone-else", mgr, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = a.do(t, http.MethodGet, "/v1/realtime?channels=gossip", mgr, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	srv := httptest.NewServer(a.e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/realtime?channels=tasks,notifications-mgr&token=" + mgr
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.hub.Subscribers(realtime.ChannelTasks) == 1 },
		time.Second, 10*time.Millisecond)

	rec, _ = a.do(t, http.MethodPost, "/v1/tasks", mgr, map[string]any{"title": "Live"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	env, ev, err := realtime.Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, realtime.EventTaskCreated, env.Event)
	assert.Equal(t, "Live", ev.(realtime.TaskCreated).Task.Title)
}
