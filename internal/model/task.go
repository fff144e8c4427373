package model

import (
	"strings"
	"time"
)

// TaskStatus is the single status enumeration used by every surface.
type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusAssigned   TaskStatus = "ASSIGNED"
	StatusAccepted   TaskStatus = "ACCEPTED"
	StatusDeclined   TaskStatus = "DECLINED"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
)

// ParseTaskStatus accepts the canonical names plus the legacy TODO alias,
// which maps to PENDING.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	st := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	if st == "TODO" {
		return StatusPending, true
	}
	switch st {
	case StatusPending, StatusAssigned, StatusAccepted, StatusDeclined, StatusInProgress, StatusDone:
		return st, true
	}
	return "", false
}

var transitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusAssigned},
	StatusAssigned:   {StatusAccepted, StatusDeclined, StatusPending},
	StatusDeclined:   {StatusAssigned, StatusPending},
	StatusAccepted:   {StatusInProgress, StatusPending},
	StatusInProgress: {StatusDone, StatusAccepted, StatusPending},
	StatusDone:       {StatusInProgress},
}

// CanTransition reports whether a task may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Column is a Kanban board column.
type Column string

const (
	ColumnTodo       Column = "TODO"
	ColumnInProgress Column = "IN_PROGRESS"
	ColumnDone       Column = "DONE"
)

// Columns lists the board columns in display order.
var Columns = []Column{ColumnTodo, ColumnInProgress, ColumnDone}

// ColumnOf projects a status onto the three board columns.
func ColumnOf(s TaskStatus) Column {
	switch s {
	case StatusInProgress:
		return ColumnInProgress
	case StatusDone:
		return ColumnDone
	default:
		return ColumnTodo
	}
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, true
	}
	return "", false
}

// Task is a unit of work, optionally inside a project.  AssignedToID may
// point at a user that no longer exists; see the orphan repair in the task
// service.
type Task struct {
	ID             uint64     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         TaskStatus `json:"status"`
	Priority       Priority   `json:"priority"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	AssignedToID   *uint64    `json:"assigned_to_id,omitempty"`
	CreatorID      uint64     `json:"creator_id"`
	ProjectID      *uint64    `json:"project_id,omitempty"`
	RequiredSkills []string   `json:"required_skills"`
	Accepted       bool       `json:"accepted"`
	DeclineReason  string     `json:"decline_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsAssignedTo reports whether userID is the task's assignee.
func (t Task) IsAssignedTo(userID uint64) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}

// Open reports whether the task still counts towards its assignee's load.
func (t Task) Open() bool { return t.Status != StatusDone }
