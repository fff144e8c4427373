package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/taskflow/internal/model"
)

// TimeEntryRepo persists time tracking entries.
type TimeEntryRepo struct{ db *sql.DB }

func NewTimeEntryRepo(db *sql.DB) *TimeEntryRepo { return &TimeEntryRepo{db: db} }

const timeEntryColumns = "id,user_id,task_id,started_at,ended_at,description"

// Start opens a new entry.  The insert itself is the check: the open-entry
// unique index rejects a second open row for the same user, which is
// reported as ErrOpenEntryExists.
func (r *TimeEntryRepo) Start(ctx context.Context, e *model.TimeEntry) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO time_entries (user_id,task_id,started_at,ended_at,description) VALUES (?,?,?,NULL,?)",
		e.UserID, e.TaskID, ts, e.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrOpenEntryExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.StartedAt = ts
	e.EndedAt = nil
	return nil
}

// Active returns the user's open entry.
func (r *TimeEntryRepo) Active(ctx context.Context, userID uint64) (model.TimeEntry, error) {
	e, err := scanTimeEntry(r.db.QueryRowContext(ctx,
		"SELECT "+timeEntryColumns+" FROM time_entries WHERE user_id=? AND ended_at IS NULL LIMIT 1", userID))
	return e, notFound(err)
}

// Stop closes the user's open entry and returns it.
func (r *TimeEntryRepo) Stop(ctx context.Context, userID uint64) (model.TimeEntry, error) {
	e, err := r.Active(ctx, userID)
	if err != nil {
		return model.TimeEntry{}, err
	}
	ts := now()
	res, err := r.db.ExecContext(ctx,
		"UPDATE time_entries SET ended_at=? WHERE id=? AND ended_at IS NULL", ts, e.ID)
	if err != nil {
		return model.TimeEntry{}, err
	}
	if err := affected(res); err != nil {
		return model.TimeEntry{}, err
	}
	e.EndedAt = &ts
	return e, nil
}

// List returns the user's entries, newest first, optionally for one task.
func (r *TimeEntryRepo) List(ctx context.Context, userID, taskID uint64) ([]model.TimeEntry, error) {
	q := "SELECT " + timeEntryColumns + " FROM time_entries WHERE user_id=?"
	args := []any{userID}
	if taskID != 0 {
		q += " AND task_id=?"
		args = append(args, taskID)
	}
	q += " ORDER BY started_at DESC, id DESC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TimeEntry{}
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountOpen returns the number of open entries of the user.
func (r *TimeEntryRepo) CountOpen(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM time_entries WHERE user_id=? AND ended_at IS NULL", userID).Scan(&n)
	return n, err
}

func scanTimeEntry(s rowScanner) (model.TimeEntry, error) {
	var (
		e     model.TimeEntry
		ended sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.TaskID, &e.StartedAt, &ended, &e.Description); err != nil {
		return model.TimeEntry{}, err
	}
	e.StartedAt = e.StartedAt.UTC()
	e.EndedAt = timePtr(ended)
	return e, nil
}

// TotalForTask sums closed entries of a task.
func (r *TimeEntryRepo) TotalForTask(ctx context.Context, taskID uint64) (time.Duration, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+timeEntryColumns+" FROM time_entries WHERE task_id=? AND ended_at IS NOT NULL", taskID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var total time.Duration
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return 0, err
		}
		total += e.Duration(e.StartedAt)
	}
	return total, rows.Err()
}
