// Package realtime carries mutation outcomes to connected sessions.  Events
// are a closed set of variants; each variant names its channel and wire
// event name and dispatches itself to a Visitor, so a consumer that
// implements Visitor handles every variant or fails to compile.
package realtime

import (
	"strings"
	"time"

	"github.com/iliyamo/taskflow/internal/model"
)

// Channels.
const (
	ChannelProjects = "projects"
	ChannelTasks    = "tasks"
	ChannelMembers  = "members"

	notificationPrefix = "notifications-"
)

// NotificationChannel is the private channel of the user with the given
// external id.
func NotificationChannel(externalID string) string { return notificationPrefix + externalID }

// NotificationRecipient returns the external id behind a notification
// channel name.
func NotificationRecipient(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, notificationPrefix)
	return id, ok && id != ""
}

// ValidChannel reports whether name is a channel events are published on.
func ValidChannel(name string) bool {
	switch name {
	case ChannelProjects, ChannelTasks, ChannelMembers:
		return true
	}
	_, ok := NotificationRecipient(name)
	return ok
}

// Wire event names.
const (
	EventTaskCreated            = "task-created"
	EventTaskUpdated            = "task-updated"
	EventTaskDeleted            = "task-deleted"
	EventTaskAssigned           = "task-assigned"
	EventTaskCompleted          = "task-completed"
	EventProjectCreated         = "project-created"
	EventProjectUpdated         = "project-updated"
	EventProjectDeleted         = "project-deleted"
	EventProjectProgressUpdated = "project-progress-updated"
	EventMemberAdded            = "member-added"
	EventMemberRemoved          = "member-removed"
	EventMemberRoleUpdated      = "member-role-updated"
	EventNewNotification        = "new-notification"
)

// Event is implemented only by the variants in this file.
type Event interface {
	Channel() string
	Name() string
	Accept(v Visitor)
	sealed()
}

// Visitor handles every event variant.
type Visitor interface {
	TaskCreated(TaskCreated)
	TaskUpdated(TaskUpdated)
	TaskDeleted(TaskDeleted)
	TaskAssigned(TaskAssigned)
	TaskCompleted(TaskCompleted)
	ProjectCreated(ProjectCreated)
	ProjectUpdated(ProjectUpdated)
	ProjectDeleted(ProjectDeleted)
	ProjectProgressUpdated(ProjectProgressUpdated)
	MemberAdded(MemberAdded)
	MemberRemoved(MemberRemoved)
	MemberRoleUpdated(MemberRoleUpdated)
	NewNotification(NewNotification)
}

type TaskCreated struct {
	Task model.Task `json:"task"`
}

// TaskUpdated is a partial patch of the task with the given id.
type TaskUpdated struct {
	ID    uint64    `json:"id"`
	Patch TaskPatch `json:"patch"`
}

type TaskDeleted struct {
	ID        uint64  `json:"id"`
	ProjectID *uint64 `json:"project_id,omitempty"`
}

type TaskAssigned struct {
	Task       model.Task `json:"task"`
	AssigneeID uint64     `json:"assignee_id"`
}

type TaskCompleted struct {
	Task model.Task `json:"task"`
}

type ProjectCreated struct {
	Project model.Project `json:"project"`
}

type ProjectUpdated struct {
	Project model.Project `json:"project"`
}

type ProjectDeleted struct {
	ID uint64 `json:"id"`
}

type ProjectProgressUpdated struct {
	ID       uint64 `json:"id"`
	Progress int    `json:"progress"`
}

type MemberAdded struct {
	TeamID uint64     `json:"team_id"`
	User   model.User `json:"user"`
}

type MemberRemoved struct {
	TeamID uint64 `json:"team_id"`
	UserID uint64 `json:"user_id"`
}

type MemberRoleUpdated struct {
	TeamID uint64     `json:"team_id"`
	UserID uint64     `json:"user_id"`
	Role   model.Role `json:"role"`
}

// NewNotification is delivered on the recipient's private channel.
type NewNotification struct {
	Recipient    string             `json:"-"`
	Notification model.Notification `json:"notification"`
}

func (TaskCreated) Channel() string            { return ChannelTasks }
func (TaskUpdated) Channel() string            { return ChannelTasks }
func (TaskDeleted) Channel() string            { return ChannelTasks }
func (TaskAssigned) Channel() string           { return ChannelTasks }
func (TaskCompleted) Channel() string          { return ChannelTasks }
func (ProjectCreated) Channel() string         { return ChannelProjects }
func (ProjectUpdated) Channel() string         { return ChannelProjects }
func (ProjectDeleted) Channel() string         { return ChannelProjects }
func (ProjectProgressUpdated) Channel() string { return ChannelProjects }
func (MemberAdded) Channel() string            { return ChannelMembers }
func (MemberRemoved) Channel() string          { return ChannelMembers }
func (MemberRoleUpdated) Channel() string      { return ChannelMembers }
func (e NewNotification) Channel() string      { return NotificationChannel(e.Recipient) }

func (TaskCreated) Name() string            { return EventTaskCreated }
func (TaskUpdated) Name() string            { return EventTaskUpdated }
func (TaskDeleted) Name() string            { return EventTaskDeleted }
func (TaskAssigned) Name() string           { return EventTaskAssigned }
func (TaskCompleted) Name() string          { return EventTaskCompleted }
func (ProjectCreated) Name() string         { return EventProjectCreated }
func (ProjectUpdated) Name() string         { return EventProjectUpdated }
func (ProjectDeleted) Name() string         { return EventProjectDeleted }
func (ProjectProgressUpdated) Name() string { return EventProjectProgressUpdated }
func (MemberAdded) Name() string            { return EventMemberAdded }
func (MemberRemoved) Name() string          { return EventMemberRemoved }
func (MemberRoleUpdated) Name() string      { return EventMemberRoleUpdated }
func (NewNotification) Name() string        { return EventNewNotification }

func (e TaskCreated) Accept(v Visitor)            { v.TaskCreated(e) }
func (e TaskUpdated) Accept(v Visitor)            { v.TaskUpdated(e) }
func (e TaskDeleted) Accept(v Visitor)            { v.TaskDeleted(e) }
func (e TaskAssigned) Accept(v Visitor)           { v.TaskAssigned(e) }
func (e TaskCompleted) Accept(v Visitor)          { v.TaskCompleted(e) }
func (e ProjectCreated) Accept(v Visitor)         { v.ProjectCreated(e) }
func (e ProjectUpdated) Accept(v Visitor)         { v.ProjectUpdated(e) }
func (e ProjectDeleted) Accept(v Visitor)         { v.ProjectDeleted(e) }
func (e ProjectProgressUpdated) Accept(v Visitor) { v.ProjectProgressUpdated(e) }
func (e MemberAdded) Accept(v Visitor)            { v.MemberAdded(e) }
func (e MemberRemoved) Accept(v Visitor)          { v.MemberRemoved(e) }
func (e MemberRoleUpdated) Accept(v Visitor)      { v.MemberRoleUpdated(e) }
func (e NewNotification) Accept(v Visitor)        { v.NewNotification(e) }

func (TaskCreated) sealed()            {}
func (TaskUpdated) sealed()            {}
func (TaskDeleted) sealed()            {}
func (TaskAssigned) sealed()           {}
func (TaskCompleted) sealed()          {}
func (ProjectCreated) sealed()         {}
func (ProjectUpdated) sealed()         {}
func (ProjectDeleted) sealed()         {}
func (ProjectProgressUpdated) sealed() {}
func (MemberAdded) sealed()            {}
func (MemberRemoved) sealed()          {}
func (MemberRoleUpdated) sealed()      {}
func (NewNotification) sealed()        {}

// TaskPatch lists the task fields a task-updated event changes.  Nil
// fields are unchanged; Unassigned clears the assignee and ClearDeadline
// the deadline.
type TaskPatch struct {
	Title         *string           `json:"title,omitempty"`
	Description   *string           `json:"description,omitempty"`
	Status        *model.TaskStatus `json:"status,omitempty"`
	Priority      *model.Priority   `json:"priority,omitempty"`
	Deadline      *time.Time        `json:"deadline,omitempty"`
	ClearDeadline bool              `json:"clear_deadline,omitempty"`
	AssignedToID  *uint64           `json:"assigned_to_id,omitempty"`
	Unassigned    bool              `json:"unassigned,omitempty"`
	Accepted      *bool             `json:"accepted,omitempty"`
	DeclineReason *string           `json:"decline_reason,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool { return p == TaskPatch{} }

// Apply writes the patched fields into t.
func (p TaskPatch) Apply(t *model.Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.ClearDeadline {
		t.Deadline = nil
	} else if p.Deadline != nil {
		d := *p.Deadline
		t.Deadline = &d
	}
	if p.Unassigned {
		t.AssignedToID = nil
	} else if p.AssignedToID != nil {
		id := *p.AssignedToID
		t.AssignedToID = &id
	}
	if p.Accepted != nil {
		t.Accepted = *p.Accepted
	}
	if p.DeclineReason != nil {
		t.DeclineReason = *p.DeclineReason
	}
}

// Diff returns the patch that turns before into after.
func Diff(before, after model.Task) TaskPatch {
	var p TaskPatch
	if before.Title != after.Title {
		p.Title = &after.Title
	}
	if before.Description != after.Description {
		p.Description = &after.Description
	}
	if before.Status != after.Status {
		p.Status = &after.Status
	}
	if before.Priority != after.Priority {
		p.Priority = &after.Priority
	}
	switch {
	case after.Deadline == nil && before.Deadline != nil:
		p.ClearDeadline = true
	case after.Deadline != nil && (before.Deadline == nil || !before.Deadline.Equal(*after.Deadline)):
		p.Deadline = after.Deadline
	}
	switch {
	case after.AssignedToID == nil && before.AssignedToID != nil:
		p.Unassigned = true
	case after.AssignedToID != nil && (before.AssignedToID == nil || *before.AssignedToID != *after.AssignedToID):
		p.AssignedToID = after.AssignedToID
	}
	if before.Accepted != after.Accepted {
		p.Accepted = &after.Accepted
	}
	if before.DeclineReason != after.DeclineReason {
		p.DeclineReason = &after.DeclineReason
	}
	return p
}
