package model

import "time"

// NotificationType classifies a notification for the UI.
type NotificationType string

const (
	NotifyTaskAssigned       NotificationType = "TASK_ASSIGNED"
	NotifyTaskCompleted      NotificationType = "TASK_COMPLETED"
	NotifyTaskAccepted       NotificationType = "TASK_ACCEPTED"
	NotifyTaskDeclined       NotificationType = "TASK_DECLINED"
	NotifyTaskRescheduled    NotificationType = "TASK_RESCHEDULED"
	NotifyMeetingScheduled   NotificationType = "MEETING_SCHEDULED"
	NotifyMeetingRescheduled NotificationType = "MEETING_RESCHEDULED"
	NotifyCommentAdded       NotificationType = "COMMENT_ADDED"
)

// Notification is addressed to a single user.
type Notification struct {
	ID        uint64           `json:"id"`
	UserID    uint64           `json:"user_id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	Link      *string          `json:"link,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
