package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/realtime"
	"github.com/iliyamo/taskflow/internal/service"
)

func TestProjectVisibilityFollowsRelationships(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	other := e.user(t, "other-mgr", model.RoleManager)
	lead := e.user(t, "lead", model.RoleTeamLeader)
	emp := e.user(t, "emp", model.RoleEmployee)
	outsider := e.user(t, "outsider", model.RoleEmployee)
	client := e.user(t, "client", model.RoleClient)
	admin := e.user(t, "admin", model.RoleAdmin)

	team, err := e.teams.Create(ctx, m, service.TeamInput{Name: "Core", LeaderID: &lead.ID, MemberIDs: []uint64{emp.ID}})
	require.NoError(t, err)
	p, err := e.projects.Create(ctx, m, service.ProjectInput{Name: "P", ClientID: &client.ID, TeamID: &team.ID})
	require.NoError(t, err)
	_, err = e.projects.Create(ctx, other, service.ProjectInput{Name: "Q"})
	require.NoError(t, err)

	for _, u := range []model.User{m, lead, emp, client} {
		list, err := e.projects.List(ctx, u, "")
		require.NoError(t, err)
		require.Len(t, list, 1, u.ExternalID)
		assert.Equal(t, p.ID, list[0].ID)
		_, err = e.projects.Get(ctx, u, p.ID)
		assert.NoError(t, err, u.ExternalID)
	}
	list, err := e.projects.List(ctx, outsider, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = e.projects.Get(ctx, outsider, p.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	all, err := e.projects.List(ctx, admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestProjectCreateRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	lead := e.user(t, "lead", model.RoleTeamLeader)
	emp := e.user(t, "emp", model.RoleEmployee)

	_, err := e.projects.Create(ctx, lead, service.ProjectInput{Name: "P"})
	assert.ErrorIs(t, err, service.ErrForbidden)
	_, err = e.projects.Create(ctx, m, service.ProjectInput{Name: " "})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = e.projects.Create(ctx, m, service.ProjectInput{Name: "P", ClientID: &emp.ID})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = e.projects.Create(ctx, m, service.ProjectInput{Name: "P", Status: "DREAMING"})
	assert.ErrorIs(t, err, service.ErrValidation)

	p, err := e.projects.Create(ctx, m, service.ProjectInput{Name: "P"})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectPlanning, p.Status)
	assert.Equal(t, m.ID, p.ManagerID)
	assert.Len(t, e.bus.Named(realtime.EventProjectCreated), 1)
}

func TestProjectUpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	other := e.user(t, "other", model.RoleManager)
	p, err := e.projects.Create(ctx, m, service.ProjectInput{Name: "P"})
	require.NoError(t, err)
	tk := e.task(t, m, service.TaskInput{ProjectID: &p.ID})

	_, err = e.projects.Update(ctx, other, p.ID, service.ProjectUpdate{Name: ptr("mine")})
	assert.ErrorIs(t, err, service.ErrForbidden)

	got, err := e.projects.Update(ctx, m, p.ID, service.ProjectUpdate{Name: ptr("Renamed"), Status: ptr("active")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, model.ProjectActive, got.Status)

	assert.ErrorIs(t, e.projects.Delete(ctx, other, p.ID), service.ErrForbidden)
	require.NoError(t, e.projects.Delete(ctx, m, p.ID))
	_, err = e.tasksDB.Get(ctx, tk.ID)
	assert.Error(t, err, "tasks go with their project")
	assert.Len(t, e.bus.Named(realtime.EventProjectDeleted), 1)
	assert.Contains(t, e.cache.got, "/v1/projects")
}

func TestUpdateProgress(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	p, err := e.projects.Create(ctx, m, service.ProjectInput{Name: "P"})
	require.NoError(t, err)
	done := e.task(t, m, service.TaskInput{ProjectID: &p.ID, AssigneeID: &emp.ID})
	e.task(t, m, service.TaskInput{ProjectID: &p.ID})
	e.task(t, m, service.TaskInput{ProjectID: &p.ID})
	_, err = e.tasks.Complete(ctx, m, done.ID)
	require.NoError(t, err)

	_, err = e.projects.UpdateProgress(ctx, m, p.ID, service.ProgressInput{Progress: ptr(101)})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = e.projects.UpdateProgress(ctx, m, p.ID, service.ProgressInput{})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = e.projects.UpdateProgress(ctx, emp, p.ID, service.ProgressInput{Progress: ptr(10)})
	assert.ErrorIs(t, err, service.ErrForbidden)

	got, err := e.projects.UpdateProgress(ctx, m, p.ID, service.ProgressInput{Progress: ptr(70)})
	require.NoError(t, err)
	assert.Equal(t, 70, got.Progress)
	assert.False(t, got.DeriveProgress)

	got, err = e.projects.UpdateProgress(ctx, m, p.ID, service.ProgressInput{Derive: true})
	require.NoError(t, err)
	assert.Equal(t, 33, got.Progress)
	assert.True(t, got.DeriveProgress)
}

func TestTeamMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	lead := e.user(t, "lead", model.RoleTeamLeader)
	emp := e.user(t, "emp", model.RoleEmployee)
	outsider := e.user(t, "outsider", model.RoleEmployee)
	client := e.user(t, "client", model.RoleClient)

	_, err := e.teams.Create(ctx, lead, service.TeamInput{Name: "X"})
	assert.ErrorIs(t, err, service.ErrForbidden)
	team, err := e.teams.Create(ctx, m, service.TeamInput{Name: "Core", LeaderID: &lead.ID})
	require.NoError(t, err)

	got, err := e.teams.AddMember(ctx, lead, team.ID, emp.ID)
	require.NoError(t, err)
	assert.True(t, got.HasMember(emp.ID))
	_, err = e.teams.AddMember(ctx, lead, team.ID, emp.ID)
	assert.ErrorIs(t, err, service.ErrConflict)
	_, err = e.teams.AddMember(ctx, m, team.ID, client.ID)
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = e.teams.AddMember(ctx, emp, team.ID, outsider.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = e.teams.Get(ctx, outsider, team.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)
	mine, err := e.teams.List(ctx, emp)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	_, err = e.teams.List(ctx, client)
	assert.ErrorIs(t, err, service.ErrForbidden)

	got, err = e.teams.RemoveMember(ctx, lead, team.ID, emp.ID)
	require.NoError(t, err)
	assert.False(t, got.HasMember(emp.ID))
	_, err = e.teams.RemoveMember(ctx, lead, team.ID, emp.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	assert.Len(t, e.bus.Named(realtime.EventMemberAdded), 1)
	assert.Len(t, e.bus.Named(realtime.EventMemberRemoved), 1)
}

func TestUpdateMemberRolePromotesAndPushes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	team, err := e.teams.Create(ctx, m, service.TeamInput{Name: "Core", MemberIDs: []uint64{emp.ID}})
	require.NoError(t, err)

	_, err = e.teams.UpdateMemberRole(ctx, m, team.ID, emp.ID, "ADMIN")
	assert.ErrorIs(t, err, service.ErrValidation)

	got, err := e.teams.UpdateMemberRole(ctx, m, team.ID, emp.ID, "team_leader")
	require.NoError(t, err)
	require.NotNil(t, got.LeaderID)
	assert.Equal(t, emp.ID, *got.LeaderID)
	u, err := e.users.GetByID(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTeamLeader, u.Role)
	assert.Equal(t, model.RoleTeamLeader, e.roles.pushed["emp"])

	got, err = e.teams.UpdateMemberRole(ctx, m, team.ID, emp.ID, "EMPLOYEE")
	require.NoError(t, err)
	assert.Nil(t, got.LeaderID)

	updates := e.bus.Named(realtime.EventMemberRoleUpdated)
	require.Len(t, updates, 2)
	assert.Equal(t, model.RoleEmployee, updates[1].(realtime.MemberRoleUpdated).Role)
}

func TestDemotionEndsEveryLeadership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	core, err := e.teams.Create(ctx, m, service.TeamInput{Name: "Core", MemberIDs: []uint64{emp.ID}})
	require.NoError(t, err)
	_, err = e.teams.UpdateMemberRole(ctx, m, core.ID, emp.ID, "TEAM_LEADER")
	require.NoError(t, err)
	ops, err := e.teams.Create(ctx, m, service.TeamInput{Name: "Ops", LeaderID: &emp.ID})
	require.NoError(t, err)
	require.NotNil(t, ops.LeaderID)

	_, err = e.teams.UpdateMemberRole(ctx, m, core.ID, emp.ID, "EMPLOYEE")
	require.NoError(t, err)

	for _, id := range []uint64{core.ID, ops.ID} {
		got, err := e.teamsDB.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got.LeaderID, "team %d", id)
	}
}

func TestCommentsNotifyManager(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	client := e.user(t, "client", model.RoleClient)
	stranger := e.user(t, "stranger", model.RoleClient)
	p, err := e.projects.Create(ctx, m, service.ProjectInput{Name: "P", ClientID: &client.ID})
	require.NoError(t, err)

	_, err = e.comments.Create(ctx, client, p.ID, service.CommentInput{Content: "nice", Rating: ptr(6)})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = e.comments.Create(ctx, stranger, p.ID, service.CommentInput{Content: "hi"})
	assert.ErrorIs(t, err, service.ErrForbidden)

	c, err := e.comments.Create(ctx, client, p.ID, service.CommentInput{Content: "nice", Rating: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, "client", c.Author)
	_, err = e.comments.Create(ctx, m, p.ID, service.CommentInput{Content: "thanks"})
	require.NoError(t, err)

	notes := e.unread(t, m)
	require.Len(t, notes, 1, "own comments do not notify")
	assert.Equal(t, model.NotifyCommentAdded, notes[0].Type)

	list, err := e.comments.List(ctx, client, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMeetingsInviteParticipants(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	lead := e.user(t, "lead", model.RoleTeamLeader)
	emp := e.user(t, "emp", model.RoleEmployee)
	client := e.user(t, "client", model.RoleClient)
	team, err := e.teams.Create(ctx, m, service.TeamInput{Name: "Core", LeaderID: &lead.ID, MemberIDs: []uint64{emp.ID}})
	require.NoError(t, err)
	p, err := e.projects.Create(ctx, m, service.ProjectInput{Name: "P", ClientID: &client.ID, TeamID: &team.ID})
	require.NoError(t, err)
	start := time.Now().Add(24 * time.Hour)

	_, err = e.meetings.Create(ctx, emp, p.ID, service.MeetingInput{Title: "Sync", StartsAt: start, EndsAt: start.Add(time.Hour)})
	assert.ErrorIs(t, err, service.ErrForbidden)
	_, err = e.meetings.Create(ctx, lead, p.ID, service.MeetingInput{Title: "Sync", StartsAt: start, EndsAt: start})
	assert.ErrorIs(t, err, service.ErrValidation)

	mt, err := e.meetings.Create(ctx, lead, p.ID, service.MeetingInput{Title: "Sync", StartsAt: start, EndsAt: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{m.ID, lead.ID, emp.ID, client.ID}, mt.AttendeeIDs)
	for _, u := range []model.User{m, emp, client} {
		notes := e.unread(t, u)
		require.Len(t, notes, 1, u.ExternalID)
		assert.Equal(t, model.NotifyMeetingScheduled, notes[0].Type)
	}
	assert.Empty(t, e.unread(t, lead), "the organizer is not notified")

	later := start.Add(2 * time.Hour)
	_, err = e.meetings.Update(ctx, m, mt.ID, service.MeetingUpdate{StartsAt: &later, EndsAt: ptr(later.Add(time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, model.NotifyMeetingRescheduled, e.unread(t, emp)[0].Type)

	got, err := e.meetings.Update(ctx, m, mt.ID, service.MeetingUpdate{Status: ptr("cancelled")})
	require.NoError(t, err)
	assert.Equal(t, model.MeetingCancelled, got.Status)
	assert.Len(t, e.unread(t, emp), 2, "a status change is not a reschedule")
}

func TestNotificationsReadFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.user(t, "mgr", model.RoleManager)
	emp := e.user(t, "emp", model.RoleEmployee)
	e.task(t, m, service.TaskInput{AssigneeID: &emp.ID})
	e.task(t, m, service.TaskInput{AssigneeID: &emp.ID})

	list, err := e.notes.List(ctx, emp, true)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.ErrorIs(t, e.notes.MarkRead(ctx, m, list[0].ID), service.ErrNotFound)
	require.NoError(t, e.notes.MarkRead(ctx, emp, list[0].ID))

	n, err := e.notes.UnreadCount(ctx, emp)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	marked, err := e.notes.MarkAllRead(ctx, emp)
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)
}

func TestUsersAndBilling(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.user(t, "admin", model.RoleAdmin)
	emp := e.user(t, "emp", model.RoleEmployee)
	client := e.user(t, "client", model.RoleClient)

	me, err := e.people.UpdateProfile(ctx, emp, service.ProfileInput{Skills: &[]string{"Go", " go ", "SQL"}, Experience: ptr(4)})
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "SQL"}, me.Skills)
	assert.Equal(t, 4, me.Experience)
	_, err = e.people.UpdateProfile(ctx, emp, service.ProfileInput{Experience: ptr(-1)})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = e.people.List(ctx, client, "")
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = e.people.SetRole(ctx, emp, client.ID, "MANAGER")
	assert.ErrorIs(t, err, service.ErrForbidden)
	promoted, err := e.people.SetRole(ctx, admin, emp.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, promoted.Role)
	assert.Equal(t, model.RoleManager, e.roles.pushed["emp"])

	b, err := e.people.Billing(ctx, client, 0)
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, b.Tier)
	_, err = e.people.Billing(ctx, client, emp.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = e.people.SetBilling(ctx, client, client.ID, service.BillingInput{Tier: "PRO"})
	assert.ErrorIs(t, err, service.ErrForbidden)
	b, err = e.people.SetBilling(ctx, admin, client.ID, service.BillingInput{Tier: "pro", Credits: ptr(50)})
	require.NoError(t, err)
	assert.Equal(t, service.Billing{UserID: client.ID, Tier: model.TierPro, Credits: 50}, b)
}

func TestSyncExternalUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, created, err := e.people.SyncExternal(ctx, service.ExternalUser{ID: "user_1", Email: "Ann@Example.com", Name: "Ann"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, service.DefaultRole, u.Role)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, service.DefaultRole, e.roles.pushed["user_1"])

	u, created, err = e.people.SyncExternal(ctx, service.ExternalUser{ID: "user_1", Email: "ann@example.com", Name: "Ann B", Role: "CLIENT"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, model.RoleClient, u.Role)
	assert.Equal(t, "Ann B", u.Name)

	caller, err := e.people.Caller(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, caller.ID)

	require.NoError(t, e.people.DeleteExternal(ctx, "user_1"))
	require.NoError(t, e.people.DeleteExternal(ctx, "user_1"))
	_, err = e.people.Caller(ctx, "user_1")
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestSyncExternalKeepsRoleWithoutMetadata(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.user(t, "admin", model.RoleAdmin)

	u, _, err := e.people.SyncExternal(ctx, service.ExternalUser{ID: "user_1", Email: "ann@example.com", Name: "Ann"})
	require.NoError(t, err)
	_, err = e.people.SetRole(ctx, admin, u.ID, "MANAGER")
	require.NoError(t, err)

	for _, raw := range []string{"", "OWNER"} {
		u, created, err := e.people.SyncExternal(ctx, service.ExternalUser{ID: "user_1", Name: "Ann B", Role: raw})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, model.RoleManager, u.Role, "role %q", raw)
		assert.Equal(t, "Ann B", u.Name)
		assert.Equal(t, "ann@example.com", u.Email)
		assert.Equal(t, model.RoleManager, e.roles.pushed["user_1"], "stored role is pushed back")
	}
}
