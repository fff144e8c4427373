package model

import (
	"strings"
	"time"
)

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingCancelled MeetingStatus = "CANCELLED"
	MeetingCompleted MeetingStatus = "COMPLETED"
)

func ParseMeetingStatus(s string) (MeetingStatus, bool) {
	m := MeetingStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MeetingScheduled, MeetingCancelled, MeetingCompleted:
		return m, true
	}
	return "", false
}

// Meeting is a scheduled call for a project.  Attendees are filled from the
// project's members when the meeting is created.
type Meeting struct {
	ID          uint64        `json:"id"`
	ProjectID   uint64        `json:"project_id"`
	OrganizerID uint64        `json:"organizer_id"`
	Title       string        `json:"title"`
	StartsAt    time.Time     `json:"starts_at"`
	EndsAt      time.Time     `json:"ends_at"`
	Status      MeetingStatus `json:"status"`
	AttendeeIDs []uint64      `json:"attendee_ids"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
