package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/taskflow/internal/model"
)

func TestBoardMergesEvents(t *testing.T) {
	pid := uint64(1)
	uid := uint64(9)
	b := NewBoard(
		[]model.Task{{ID: 1, Title: "a", Status: model.StatusPending, ProjectID: &pid}},
		[]model.Project{{ID: 1, Name: "P"}},
	)
	var toasts []string
	b.OnToast = func(_, msg string) { toasts = append(toasts, msg) }

	status := model.StatusInProgress
	b.Apply(TaskUpdated{ID: 1, Patch: TaskPatch{Status: &status, AssignedToID: &uid}})
	got, ok := b.Task(1)
	require.True(t, ok)
	assert.Equal(t, model.StatusInProgress, got.Status)
	assert.Equal(t, &uid, got.AssignedToID)

	b.Apply(TaskCreated{Task: model.Task{ID: 2, Title: "b", Status: model.StatusDone, ProjectID: &pid}})
	cols := b.Columns(pid)
	assert.Len(t, cols[model.ColumnInProgress], 1)
	assert.Len(t, cols[model.ColumnDone], 1)
	assert.Empty(t, cols[model.ColumnTodo])

	b.Apply(ProjectProgressUpdated{ID: 1, Progress: 100})
	p, _ := b.Project(1)
	assert.Equal(t, 100, p.Progress)

	b.Apply(MemberAdded{TeamID: 3, User: model.User{ID: 9, Name: "Ann", Role: model.RoleEmployee}})
	b.Apply(MemberRoleUpdated{TeamID: 3, UserID: 9, Role: model.RoleTeamLeader})
	role, ok := b.TeamRole(3, 9)
	assert.True(t, ok)
	assert.Equal(t, model.RoleTeamLeader, role)
	b.Apply(MemberRemoved{TeamID: 3, UserID: 9})
	_, ok = b.TeamRole(3, 9)
	assert.False(t, ok)

	b.Apply(NewNotification{Recipient: "u", Notification: model.Notification{Title: "Assigned", Message: "do it"}})
	assert.Equal(t, 1, b.Unread())

	b.Apply(ProjectDeleted{ID: 1})
	_, ok = b.Task(1)
	assert.False(t, ok)
	_, ok = b.Project(1)
	assert.False(t, ok)

	assert.Equal(t, []string{"New task: b", "Project completed: P", "Ann joined the team", "Assigned: do it"}, toasts)
}

func TestBoardIgnoresUpdatesForUnknownTasks(t *testing.T) {
	b := NewBoard(nil, nil)
	title := "x"
	b.Apply(TaskUpdated{ID: 42, Patch: TaskPatch{Title: &title}})
	_, ok := b.Task(42)
	assert.False(t, ok)
}

func TestBoardMoveIsLocal(t *testing.T) {
	pid := uint64(1)
	b := NewBoard([]model.Task{{ID: 1, Status: model.StatusAccepted, ProjectID: &pid}}, nil)

	assert.True(t, b.Move(1, model.ColumnTodo))
	got, _ := b.Task(1)
	assert.Equal(t, model.StatusAccepted, got.Status, "moving within a column keeps the status")

	assert.True(t, b.Move(1, model.ColumnDone))
	got, _ = b.Task(1)
	assert.Equal(t, model.StatusDone, got.Status)
	assert.Len(t, b.Columns(pid)[model.ColumnDone], 1)

	assert.False(t, b.Move(99, model.ColumnDone))
}

func TestToasterDebounces(t *testing.T) {
	var shown []string
	ts := NewToaster(50*time.Millisecond, func(msg string) { shown = append(shown, msg) })
	defer ts.Stop()

	assert.True(t, ts.Toast("k", "first"))
	assert.False(t, ts.Toast("k", "second"))
	assert.True(t, ts.Toast("other", "third"))
	assert.Equal(t, 2, ts.Pending())

	require.Eventually(t, func() bool { return ts.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, ts.Toast("k", "fourth"))
	assert.Equal(t, []string{"first", "third", "fourth"}, shown)
}

func TestToasterStop(t *testing.T) {
	ts := NewToaster(time.Hour, func(string) {})
	ts.Toast("a", "a")
	ts.Toast("b", "b")
	ts.Stop()
	assert.Zero(t, ts.Pending())
	assert.True(t, ts.Toast("a", "a"))
	ts.Stop()
}

func TestBoardClearsDeadline(t *testing.T) {
	d := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	before := model.Task{ID: 1, Title: "a", Status: model.StatusAssigned, Deadline: &d}
	after := before
	after.Deadline = nil

	p := Diff(before, after)
	require.False(t, p.Empty())
	assert.True(t, p.ClearDeadline)
	assert.Nil(t, p.Deadline)

	raw, err := Encode(TaskUpdated{ID: 1, Patch: p})
	require.NoError(t, err)
	_, ev, err := Decode(raw)
	require.NoError(t, err)

	b := NewBoard([]model.Task{before}, nil)
	b.Apply(ev)
	got, ok := b.Task(1)
	require.True(t, ok)
	assert.Nil(t, got.Deadline)
}
