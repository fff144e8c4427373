package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/taskflow/internal/database/dbtest"
	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/realtime"
	"github.com/iliyamo/taskflow/internal/realtime/realtimetest"
	"github.com/iliyamo/taskflow/internal/repository"
	"github.com/iliyamo/taskflow/internal/service"
)

type paths struct {
	mu  sync.Mutex
	got []string
}

func (p *paths) Invalidate(_ context.Context, ps ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, ps...)
	return nil
}

type roles struct {
	mu     sync.Mutex
	pushed map[string]model.Role
}

func (r *roles) PushRole(_ context.Context, externalID string, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pushed == nil {
		r.pushed = map[string]model.Role{}
	}
	r.pushed[externalID] = role
	return nil
}

type env struct {
	bus   *realtimetest.Recorder
	cache *paths
	roles *roles

	users   *repository.UserRepo
	tasksDB *repository.TaskRepo
	projDB  *repository.ProjectRepo
	teamsDB *repository.TeamRepo
	notesDB *repository.NotificationRepo
	entries *repository.TimeEntryRepo

	notes    *service.NotificationService
	tasks    *service.TaskService
	projects *service.ProjectService
	teams    *service.TeamService
	comments *service.CommentService
	meetings *service.MeetingService
	time     *service.TimeService
	people   *service.UserService
}

func newEnv(t *testing.T) *env {
	db := dbtest.New(t)
	e := &env{bus: &realtimetest.Recorder{}, cache: &paths{}, roles: &roles{}}
	fx := service.Effects{Bus: e.bus, Cache: e.cache, Log: zap.NewNop()}

	e.users = repository.NewUserRepo(db)
	e.tasksDB = repository.NewTaskRepo(db)
	e.projDB = repository.NewProjectRepo(db)
	e.teamsDB = repository.NewTeamRepo(db)
	e.notesDB = repository.NewNotificationRepo(db)
	e.entries = repository.NewTimeEntryRepo(db)

	e.notes = service.NewNotificationService(e.notesDB, e.users, fx)
	e.tasks = service.NewTaskService(e.tasksDB, e.users, e.projDB, e.notes, fx)
	e.projects = service.NewProjectService(e.projDB, e.tasksDB, e.users, e.teamsDB, fx)
	e.teams = service.NewTeamService(e.teamsDB, e.users, e.roles, fx)
	e.comments = service.NewCommentService(repository.NewCommentRepo(db), e.projDB, e.notes, fx)
	e.meetings = service.NewMeetingService(repository.NewMeetingRepo(db), e.projDB, e.notes, fx)
	e.time = service.NewTimeService(e.entries, e.tasksDB, fx)
	e.people = service.NewUserService(e.users, e.roles, fx)
	return e
}

func (e *env) user(t *testing.T, ext string, role model.Role, skills ...string) model.User {
	t.Helper()
	u := model.User{ExternalID: ext, Email: ext + "@example.com", Name: ext, Role: role, Skills: skills}
	require.NoError(t, e.users.Create(context.Background(), &u))
	return u
}

func (e *env) task(t *testing.T, caller model.User, in service.TaskInput) model.Task {
	t.Helper()
	if in.Title == "" {
		in.Title = "task"
	}
	tk, err := e.tasks.Create(context.Background(), caller, in)
	require.NoError(t, err)
	return tk
}

func (e *env) unread(t *testing.T, u model.User) []model.Notification {
	t.Helper()
	n, err := e.notesDB.ListByUser(context.Background(), u.ID, true)
	require.NoError(t, err)
	return n
}

func ptr[T any](v T) *T { return &v }

func TestTaskCreateGetRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	deadline := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Microsecond)

	created := e.task(t, m, service.TaskInput{Title: "  Ship it ", Priority: "high", Deadline: &deadline})
	got, err := e.tasks.Get(ctx, m, created.ID)
	require.NoError(t, err)

	assert.Equal(t, "Ship it", got.Title)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.Equal(t, model.StatusPending, got.Status)
	require.NotNil(t, got.Deadline)
	assert.True(t, deadline.Equal(*got.Deadline), "deadline %v != %v", got.Deadline, deadline)
	assert.Len(t, e.bus.Named(realtime.EventTaskCreated), 1)
}

func TestTaskCreateValidates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	past := time.Now().Add(-time.Hour)

	for name, in := range map[string]service.TaskInput{
		"empty title":   {Title: " "},
		"bad priority":  {Title: "x", Priority: "URGENT"},
		"past deadline": {Title: "x", Deadline: &past},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.tasks.Create(ctx, m, in)
			assert.ErrorIs(t, err, service.ErrValidation)
		})
	}

	_, err := e.tasks.Create(ctx, m, service.TaskInput{Title: "x", ProjectID: ptr(uint64(99))})
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = e.tasks.Create(ctx, emp, service.TaskInput{Title: "x"})
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = e.tasks.Create(ctx, model.User{}, service.TaskInput{Title: "x"})
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestCreateWithAssigneeNotifies(t *testing.T) {
	e := newEnv(t)
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)

	tk := e.task(t, m, service.TaskInput{AssigneeID: &emp.ID})
	assert.Equal(t, model.StatusAssigned, tk.Status)
	notes := e.unread(t, emp)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotifyTaskAssigned, notes[0].Type)
	assert.Len(t, e.bus.On(realtime.NotificationChannel("emp")), 1)
}

func TestEmployeeCannotDeleteTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	tl := e.user(t, "lead", model.RoleTeamLeader)
	tk := e.task(t, m, service.TaskInput{AssigneeID: &emp.ID})

	assert.ErrorIs(t, e.tasks.Delete(ctx, emp, tk.ID), service.ErrForbidden)
	assert.ErrorIs(t, e.tasks.Delete(ctx, tl, tk.ID), service.ErrForbidden)
	_, err := e.tasksDB.Get(ctx, tk.ID)
	require.NoError(t, err, "task must survive a rejected delete")

	// the role check comes first, so a missing task is still forbidden
	assert.ErrorIs(t, e.tasks.Delete(ctx, emp, 12345), service.ErrForbidden)

	require.NoError(t, e.tasks.Delete(ctx, m, tk.ID))
	assert.Len(t, e.bus.Named(realtime.EventTaskDeleted), 1)
	assert.ErrorIs(t, e.tasks.Delete(ctx, m, tk.ID), service.ErrNotFound)
}

func TestUnassignIfUserNotExistsIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	gone := e.user(t, "gone", model.RoleEmployee)
	valid := e.task(t, m, service.TaskInput{AssigneeID: &emp.ID})
	orphan := e.task(t, m, service.TaskInput{AssigneeID: &gone.ID})
	require.NoError(t, e.people.DeleteExternal(ctx, "gone"))

	changed, err := e.tasks.UnassignIfUserNotExists(ctx, orphan.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	first, err := e.tasksDB.Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, first.AssignedToID)
	assert.Equal(t, model.StatusPending, first.Status)

	changed, err = e.tasks.UnassignIfUserNotExists(ctx, orphan.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	second, err := e.tasksDB.Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	changed, err = e.tasks.UnassignIfUserNotExists(ctx, valid.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	kept, err := e.tasksDB.Get(ctx, valid.ID)
	require.NoError(t, err)
	assert.Equal(t, &emp.ID, kept.AssignedToID)
	assert.Equal(t, model.StatusAssigned, kept.Status)
}

func TestListRepairsOrphansAndScopesByRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	other := e.user(t, "other", model.RoleEmployee)
	client := e.user(t, "client", model.RoleClient)
	p, err := e.projects.Create(ctx, m, service.ProjectInput{Name: "P", ClientID: &client.ID})
	require.NoError(t, err)

	e.task(t, m, service.TaskInput{Title: "mine", AssigneeID: &emp.ID})
	orphan := e.task(t, m, service.TaskInput{Title: "theirs", AssigneeID: &other.ID, ProjectID: &p.ID})
	require.NoError(t, e.people.DeleteExternal(ctx, "other"))

	all, err := e.tasks.List(ctx, m, service.TaskFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)
	repaired, err := e.tasksDB.Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, repaired.AssignedToID)

	own, err := e.tasks.List(ctx, emp, service.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, own.Items, 1)
	assert.Equal(t, "mine", own.Items[0].Title)

	theirs, err := e.tasks.List(ctx, client, service.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, theirs.Items, 1)
	assert.Equal(t, "theirs", theirs.Items[0].Title)

	todo, err := e.tasks.List(ctx, m, service.TaskFilter{Statuses: []string{"TODO"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, todo.Total)

	_, err = e.tasks.List(ctx, m, service.TaskFilter{Statuses: []string{"BLOCKED"}})
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestGetChecksVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	other := e.user(t, "other", model.RoleEmployee)
	tk := e.task(t, m, service.TaskInput{AssigneeID: &emp.ID})

	_, err := e.tasks.Get(ctx, emp, tk.ID)
	require.NoError(t, err)
	_, err = e.tasks.Get(ctx, other, tk.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)
	_, err = e.tasks.Get(ctx, m, 999)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestConcurrentTimerStartKeepsOneOpenEntry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	tk := e.task(t, m, service.TaskInput{AssigneeID: &emp.ID})

	const callers = 8
	var (
		mu        sync.Mutex
		started   int
		conflicts int
	)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := e.time.Start(ctx, emp, service.TimeStartInput{TaskID: tk.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, service.ErrConflict):
				conflicts++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, started)
	assert.Equal(t, callers-1, conflicts)

	open, err := e.entries.CountOpen(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)

	stopped, err := e.time.Stop(ctx, emp)
	require.NoError(t, err)
	assert.NotNil(t, stopped.EndedAt)
	_, err = e.time.Active(ctx, emp)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func (p *paths) take() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	got := p.got
	p.got = nil
	return got
}

func TestMutationsDropDependentResponses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.user(t, "admin", model.RoleAdmin)
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	tk := e.task(t, m, service.TaskInput{AssigneeID: &emp.ID})

	e.cache.take()
	_, err := e.time.Start(ctx, emp, service.TimeStartInput{TaskID: tk.ID})
	require.NoError(t, err)
	assert.Contains(t, e.cache.take(), "/v1/time/active")
	_, err = e.time.Stop(ctx, emp)
	require.NoError(t, err)
	assert.Contains(t, e.cache.take(), "/v1/time/active")

	_, err = e.people.SetRole(ctx, admin, emp.ID, "TEAM_LEADER")
	require.NoError(t, err)
	assert.Subset(t, e.cache.take(), []string{"/v1/navigation", "/v1/tasks", "/v1/me"})
}

func TestTaskTimeTotal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	other := e.user(t, "other", model.RoleEmployee)
	tk := e.task(t, m, service.TaskInput{AssigneeID: &emp.ID})

	_, err := e.time.Start(ctx, emp, service.TimeStartInput{TaskID: tk.ID})
	require.NoError(t, err)
	_, err = e.time.Stop(ctx, emp)
	require.NoError(t, err)

	got, err := e.time.Total(ctx, m, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.TaskID)
	assert.GreaterOrEqual(t, got.Seconds, int64(0))

	_, err = e.time.Total(ctx, emp, tk.ID)
	assert.NoError(t, err)
	_, err = e.time.Total(ctx, other, tk.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)
	_, err = e.time.Total(ctx, m, 0)
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = e.time.Total(ctx, m, 9999)
	assert.ErrorIs(t, err, service.ErrNotFound)
}
