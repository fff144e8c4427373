package model

import (
	"strings"
	"time"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "PLANNING"
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectOnHold    ProjectStatus = "ON_HOLD"
	ProjectCompleted ProjectStatus = "COMPLETED"
)

func ParseProjectStatus(s string) (ProjectStatus, bool) {
	p := ProjectStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted:
		return p, true
	}
	return "", false
}

// Project groups tasks for a manager and, optionally, a client and a team.
// Progress is a percentage that is either set by hand or, when
// DeriveProgress is true, recomputed from the share of DONE tasks.
type Project struct {
	ID             uint64        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Status         ProjectStatus `json:"status"`
	Progress       int           `json:"progress"`
	DeriveProgress bool          `json:"derive_progress"`
	ManagerID      uint64        `json:"manager_id"`
	ClientID       *uint64       `json:"client_id,omitempty"`
	TeamID         *uint64       `json:"team_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// DerivedProgress returns the percentage of done tasks, rounded down.
func DerivedProgress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

// Board is a project's tasks grouped by Kanban column.
type Board struct {
	ProjectID uint64            `json:"project_id"`
	Columns   map[Column][]Task `json:"columns"`
}

// NewBoard groups tasks by column; every column is present even when empty.
func NewBoard(projectID uint64, tasks []Task) Board {
	b := Board{ProjectID: projectID, Columns: make(map[Column][]Task, len(Columns))}
	for _, c := range Columns {
		b.Columns[c] = []Task{}
	}
	for _, t := range tasks {
		c := ColumnOf(t.Status)
		b.Columns[c] = append(b.Columns[c], t)
	}
	return b
}
