package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/taskflow/internal/model"
)

// MeetingRepo persists meetings and their attendee lists.
type MeetingRepo struct{ db *sql.DB }

func NewMeetingRepo(db *sql.DB) *MeetingRepo { return &MeetingRepo{db: db} }

// Create inserts the meeting and its attendees in one transaction.
func (r *MeetingRepo) Create(ctx context.Context, m *model.Meeting) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ts := now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO meetings (project_id,organizer_id,title,starts_at,ends_at,status,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		m.ProjectID, m.OrganizerID, m.Title, m.StartsAt.UTC(), m.EndsAt.UTC(), string(m.Status), ts, ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, uid := range m.AttendeeIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO meeting_attendees (meeting_id,user_id) VALUES (?,?)", id, uid); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	m.ID = uint64(id)
	m.CreatedAt, m.UpdatedAt = ts, ts
	if m.AttendeeIDs == nil {
		m.AttendeeIDs = []uint64{}
	}
	return nil
}

func (r *MeetingRepo) Get(ctx context.Context, id uint64) (model.Meeting, error) {
	m, err := scanMeeting(r.db.QueryRowContext(ctx,
		"SELECT id,project_id,organizer_id,title,starts_at,ends_at,status,created_at,updated_at FROM meetings WHERE id=?", id))
	if err != nil {
		return model.Meeting{}, notFound(err)
	}
	if m.AttendeeIDs, err = r.attendees(ctx, id); err != nil {
		return model.Meeting{}, err
	}
	return m, nil
}

// ListByProject returns the project's meetings ordered by start time.
func (r *MeetingRepo) ListByProject(ctx context.Context, projectID uint64) ([]model.Meeting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id,project_id,organizer_id,title,starts_at,ends_at,status,created_at,updated_at
		 FROM meetings WHERE project_id=? ORDER BY starts_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	var out []model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].AttendeeIDs, err = r.attendees(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []model.Meeting{}
	}
	return out, nil
}

// Update writes title, time range and status.
func (r *MeetingRepo) Update(ctx context.Context, m *model.Meeting) error {
	m.UpdatedAt = now()
	res, err := r.db.ExecContext(ctx,
		"UPDATE meetings SET title=?, starts_at=?, ends_at=?, status=?, updated_at=? WHERE id=?",
		m.Title, m.StartsAt.UTC(), m.EndsAt.UTC(), string(m.Status), m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

func scanMeeting(s rowScanner) (model.Meeting, error) {
	var (
		m      model.Meeting
		status string
	)
	if err := s.Scan(&m.ID, &m.ProjectID, &m.OrganizerID, &m.Title, &m.StartsAt, &m.EndsAt,
		&status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return model.Meeting{}, err
	}
	m.Status = model.MeetingStatus(status)
	m.StartsAt, m.EndsAt = m.StartsAt.UTC(), m.EndsAt.UTC()
	m.CreatedAt, m.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()
	return m, nil
}

func (r *MeetingRepo) attendees(ctx context.Context, meetingID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id FROM meeting_attendees WHERE meeting_id=? ORDER BY user_id", meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
