package realtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/iliyamo/taskflow/internal/model"
)

// Board is a subscriber's local copy of tasks and projects, kept current
// by merging realtime events.  It implements Visitor, so every event
// variant has a handler.
type Board struct {
	mu       sync.Mutex
	tasks    map[uint64]model.Task
	projects map[uint64]model.Project
	members  map[uint64]map[uint64]model.Role // team id -> user id -> role
	unread   int

	// OnToast, when set, is called with a deduplication key and a message
	// for events worth surfacing to the user.  It runs with the board
	// locked and must not call back into the board.
	OnToast func(key, msg string)
}

var _ Visitor = (*Board)(nil)

// NewBoard seeds a board from a full fetch.
func NewBoard(tasks []model.Task, projects []model.Project) *Board {
	b := &Board{
		tasks:    make(map[uint64]model.Task, len(tasks)),
		projects: make(map[uint64]model.Project, len(projects)),
		members:  make(map[uint64]map[uint64]model.Role),
	}
	for _, t := range tasks {
		b.tasks[t.ID] = t
	}
	for _, p := range projects {
		b.projects[p.ID] = p
	}
	return b
}

// Apply merges one event.
func (b *Board) Apply(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev.Accept(b)
}

func (b *Board) toast(key, msg string) {
	if b.OnToast != nil {
		b.OnToast(key, msg)
	}
}

func (b *Board) TaskCreated(e TaskCreated) {
	b.tasks[e.Task.ID] = e.Task
	b.toast("task-created:"+e.Task.Title, fmt.Sprintf("New task: %s", e.Task.Title))
}

func (b *Board) TaskUpdated(e TaskUpdated) {
	t, ok := b.tasks[e.ID]
	if !ok {
		return
	}
	e.Patch.Apply(&t)
	b.tasks[e.ID] = t
}

func (b *Board) TaskDeleted(e TaskDeleted) {
	t, ok := b.tasks[e.ID]
	delete(b.tasks, e.ID)
	if ok {
		b.toast("task-deleted:"+t.Title, fmt.Sprintf("Task deleted: %s", t.Title))
	}
}

func (b *Board) TaskAssigned(e TaskAssigned) {
	b.tasks[e.Task.ID] = e.Task
	b.toast("task-assigned:"+e.Task.Title, fmt.Sprintf("Task assigned: %s", e.Task.Title))
}

func (b *Board) TaskCompleted(e TaskCompleted) {
	b.tasks[e.Task.ID] = e.Task
	b.toast("task-completed:"+e.Task.Title, fmt.Sprintf("Task completed: %s", e.Task.Title))
}

func (b *Board) ProjectCreated(e ProjectCreated) {
	b.projects[e.Project.ID] = e.Project
	b.toast("project-created:"+e.Project.Name, fmt.Sprintf("New project: %s", e.Project.Name))
}

func (b *Board) ProjectUpdated(e ProjectUpdated) {
	b.projects[e.Project.ID] = e.Project
}

func (b *Board) ProjectDeleted(e ProjectDeleted) {
	delete(b.projects, e.ID)
	for id, t := range b.tasks {
		if t.ProjectID != nil && *t.ProjectID == e.ID {
			delete(b.tasks, id)
		}
	}
}

func (b *Board) ProjectProgressUpdated(e ProjectProgressUpdated) {
	p, ok := b.projects[e.ID]
	if !ok {
		return
	}
	p.Progress = e.Progress
	b.projects[e.ID] = p
	if e.Progress == 100 {
		b.toast(fmt.Sprintf("project-done:%d", e.ID), fmt.Sprintf("Project completed: %s", p.Name))
	}
}

func (b *Board) MemberAdded(e MemberAdded) {
	set, ok := b.members[e.TeamID]
	if !ok {
		set = make(map[uint64]model.Role)
		b.members[e.TeamID] = set
	}
	set[e.User.ID] = e.User.Role
	b.toast(fmt.Sprintf("member-added:%d:%d", e.TeamID, e.User.ID), fmt.Sprintf("%s joined the team", e.User.Name))
}

func (b *Board) MemberRemoved(e MemberRemoved) {
	delete(b.members[e.TeamID], e.UserID)
}

func (b *Board) MemberRoleUpdated(e MemberRoleUpdated) {
	if set, ok := b.members[e.TeamID]; ok {
		if _, ok := set[e.UserID]; ok {
			set[e.UserID] = e.Role
		}
	}
}

func (b *Board) NewNotification(e NewNotification) {
	b.unread++
	b.toast("notification:"+e.Notification.Message, e.Notification.Title+": "+e.Notification.Message)
}

// Move drags a task into another column.  Only the local copy changes;
// persisting a status goes through the task status endpoint.  It reports
// whether the task is known.
func (b *Board) Move(taskID uint64, col model.Column) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[taskID]
	if !ok {
		return false
	}
	if model.ColumnOf(t.Status) == col {
		return true
	}
	switch col {
	case model.ColumnInProgress:
		t.Status = model.StatusInProgress
	case model.ColumnDone:
		t.Status = model.StatusDone
	default:
		t.Status = model.StatusPending
	}
	b.tasks[taskID] = t
	return true
}

// Task returns the local copy of a task.
func (b *Board) Task(id uint64) (model.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	return t, ok
}

// Project returns the local copy of a project.
func (b *Board) Project(id uint64) (model.Project, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.projects[id]
	return p, ok
}

// Columns groups the project's local tasks by Kanban column, ordered by id.
func (b *Board) Columns(projectID uint64) map[model.Column][]model.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	var tasks []model.Task
	for _, t := range b.tasks {
		if t.ProjectID != nil && *t.ProjectID == projectID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return model.NewBoard(projectID, tasks).Columns
}

// Unread is the number of notifications received since the board was
// created.
func (b *Board) Unread() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unread
}

// TeamRole returns the locally known role of a team member.
func (b *Board) TeamRole(teamID, userID uint64) (model.Role, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.members[teamID][userID]
	return r, ok
}
