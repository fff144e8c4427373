package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/policy"
	"github.com/iliyamo/taskflow/internal/repository"
)

type MeetingService struct {
	meetings *repository.MeetingRepo
	projects *repository.ProjectRepo
	notes    *NotificationService
	fx       Effects
}

func NewMeetingService(meetings *repository.MeetingRepo, projects *repository.ProjectRepo,
	notes *NotificationService, fx Effects) *MeetingService {
	return &MeetingService{meetings: meetings, projects: projects, notes: notes, fx: fx.withDefaults()}
}

type MeetingInput struct {
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// MeetingUpdate reschedules, renames or changes the status of a meeting.
type MeetingUpdate struct {
	Title    *string    `json:"title"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
	Status   *string    `json:"status"`
}

// Create schedules a meeting for every participant of the project: its
// manager, its client and its team.
func (s *MeetingService) Create(ctx context.Context, caller model.User, projectID uint64, in MeetingInput) (model.Meeting, error) {
	p, err := viewProject(ctx, s.projects, caller, projectID, policy.MeetingCreate, "schedule meetings for this project")
	if err != nil {
		return model.Meeting{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Meeting{}, invalid("title is required")
	}
	if err := validRange(in.StartsAt, in.EndsAt); err != nil {
		return model.Meeting{}, err
	}
	attendees, err := s.projects.ParticipantIDs(ctx, projectID)
	if err != nil {
		return model.Meeting{}, err
	}
	m := model.Meeting{
		ProjectID:   projectID,
		OrganizerID: caller.ID,
		Title:       title,
		StartsAt:    in.StartsAt.UTC().Truncate(time.Microsecond),
		EndsAt:      in.EndsAt.UTC().Truncate(time.Microsecond),
		Status:      model.MeetingScheduled,
		AttendeeIDs: attendees,
	}
	if err := s.meetings.Create(ctx, &m); err != nil {
		return model.Meeting{}, err
	}
	s.fx.Log.Info("meeting scheduled", zap.Uint64("meeting_id", m.ID), zap.Int("attendees", len(attendees)))
	s.tell(ctx, caller, m, model.NotifyMeetingScheduled, "Meeting scheduled",
		fmt.Sprintf("%q for %s on %s", m.Title, p.Name, m.StartsAt.Format(time.RFC1123)))
	s.fx.invalidate(ctx, meetingsPath(projectID))
	return m, nil
}

func (s *MeetingService) List(ctx context.Context, caller model.User, projectID uint64) ([]model.Meeting, error) {
	if _, err := viewProject(ctx, s.projects, caller, projectID, policy.ProjectView, "view this project"); err != nil {
		return nil, err
	}
	return s.meetings.ListByProject(ctx, projectID)
}

// Update changes a meeting.  Moving either end of the time range tells
// every attendee.
func (s *MeetingService) Update(ctx context.Context, caller model.User, id uint64, in MeetingUpdate) (model.Meeting, error) {
	if err := authenticated(caller); err != nil {
		return model.Meeting{}, err
	}
	m, err := s.meetings.Get(ctx, id)
	if err != nil {
		return model.Meeting{}, fromRepo(err, "meeting")
	}
	if _, err := viewProject(ctx, s.projects, caller, m.ProjectID, policy.MeetingUpdate, "change this meeting"); err != nil {
		return model.Meeting{}, err
	}
	before := m
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return model.Meeting{}, invalid("title is required")
		}
		m.Title = title
	}
	if in.StartsAt != nil {
		m.StartsAt = in.StartsAt.UTC().Truncate(time.Microsecond)
	}
	if in.EndsAt != nil {
		m.EndsAt = in.EndsAt.UTC().Truncate(time.Microsecond)
	}
	if err := validRange(m.StartsAt, m.EndsAt); err != nil {
		return model.Meeting{}, err
	}
	if in.Status != nil {
		st, ok := model.ParseMeetingStatus(*in.Status)
		if !ok {
			return model.Meeting{}, invalid("unknown meeting status %q", *in.Status)
		}
		m.Status = st
	}
	if err := s.meetings.Update(ctx, &m); err != nil {
		return model.Meeting{}, fromRepo(err, "meeting")
	}
	if !m.StartsAt.Equal(before.StartsAt) || !m.EndsAt.Equal(before.EndsAt) {
		s.tell(ctx, caller, m, model.NotifyMeetingRescheduled, "Meeting rescheduled",
			fmt.Sprintf("%q moved to %s", m.Title, m.StartsAt.Format(time.RFC1123)))
	}
	s.fx.invalidate(ctx, meetingsPath(m.ProjectID))
	return m, nil
}

// tell notifies every attendee except the caller.
func (s *MeetingService) tell(ctx context.Context, caller model.User, m model.Meeting, typ model.NotificationType, title, msg string) {
	link := fmt.Sprintf("/projects/%d/meetings", m.ProjectID)
	for _, id := range m.AttendeeIDs {
		if id == caller.ID {
			continue
		}
		s.notes.notifyID(ctx, id, typ, title, msg, &link)
	}
}

func validRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return invalid("starts_at and ends_at are required")
	}
	if !end.After(start) {
		return invalid("a meeting must end after it starts")
	}
	return nil
}

func meetingsPath(projectID uint64) string {
	return fmt.Sprintf("%s/%d/meetings", pathProjects, projectID)
}
