package model

import "time"

// TimeEntry is a span of tracked work on a task.  An entry with a nil
// EndedAt is open; a user has at most one open entry.
type TimeEntry struct {
	ID          uint64     `json:"id"`
	UserID      uint64     `json:"user_id"`
	TaskID      uint64     `json:"task_id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Description string     `json:"description"`
}

// Duration is the tracked time, measured up to now for open entries.
func (e TimeEntry) Duration(now time.Time) time.Duration {
	end := now
	if e.EndedAt != nil {
		end = *e.EndedAt
	}
	if end.Before(e.StartedAt) {
		return 0
	}
	return end.Sub(e.StartedAt)
}
