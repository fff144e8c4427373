package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/taskflow/internal/model"
)

const taskColumns = "t.id,t.title,t.description,t.status,t.priority,t.deadline,t.assigned_to_id,t.creator_id,t.project_id,t.required_skills,t.accepted,t.decline_reason,t.created_at,t.updated_at"

// TaskRepo persists tasks.  assigned_to_id and creator_id carry no foreign
// key, so a task may reference a deleted user until UnassignIfUserMissing
// repairs it.
type TaskRepo struct{ db *sql.DB }

func NewTaskRepo(db *sql.DB) *TaskRepo { return &TaskRepo{db: db} }

func scanTask(s rowScanner) (model.Task, error) {
	var (
		t         model.Task
		status    string
		priority  string
		deadline  sql.NullTime
		assignee  sql.NullInt64
		projectID sql.NullInt64
		skills    string
	)
	if err := s.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &deadline,
		&assignee, &t.CreatorID, &projectID, &skills, &t.Accepted, &t.DeclineReason,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Task{}, err
	}
	t.Status = model.TaskStatus(status)
	t.Priority = model.Priority(priority)
	t.Deadline = timePtr(deadline)
	t.AssignedToID = idPtr(assignee)
	t.ProjectID = idPtr(projectID)
	t.RequiredSkills = decodeList(skills)
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	return t, nil
}

// Create inserts t and fills its ID and timestamps.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (title,description,status,priority,deadline,assigned_to_id,creator_id,project_id,
		                    required_skills,accepted,decline_reason,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Title, t.Description, string(t.Status), string(t.Priority), nullableTime(t.Deadline),
		nullableID(t.AssignedToID), t.CreatorID, nullableID(t.ProjectID),
		encodeList(t.RequiredSkills), t.Accepted, t.DeclineReason, ts, ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.CreatedAt, t.UpdatedAt = ts, ts
	return nil
}

func (r *TaskRepo) Get(ctx context.Context, id uint64) (model.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks t WHERE t.id=? LIMIT 1", id))
	return t, notFound(err)
}

// Update writes every mutable column of t.  Concurrent writers race; the
// last write wins.
func (r *TaskRepo) Update(ctx context.Context, t *model.Task) error {
	t.UpdatedAt = now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET title=?, description=?, status=?, priority=?, deadline=?, assigned_to_id=?,
		        project_id=?, required_skills=?, accepted=?, decline_reason=?, updated_at=?
		 WHERE id=?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), nullableTime(t.Deadline),
		nullableID(t.AssignedToID), nullableID(t.ProjectID), encodeList(t.RequiredSkills),
		t.Accepted, t.DeclineReason, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *TaskRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return err
	}
	return affected(res)
}

// ListByProject returns all tasks of a project ordered by creation.
func (r *TaskRepo) ListByProject(ctx context.Context, projectID uint64) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks t WHERE t.project_id=? ORDER BY t.created_at, t.id", projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

const orphanCondition = `assigned_to_id IS NOT NULL
	AND NOT EXISTS (SELECT 1 FROM users u WHERE u.id = tasks.assigned_to_id)`

// UnassignIfUserMissing clears the assignee of task id when that user no
// longer exists and resets it to PENDING.  It reports whether the row
// changed; running it again is a no-op.
func (r *TaskRepo) UnassignIfUserMissing(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET assigned_to_id=NULL, status=?, accepted=?, updated_at=?
		 WHERE id=? AND `+orphanCondition,
		string(model.StatusPending), false, now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UnassignOrphans applies the same repair to every task and returns the
// number of repaired rows.
func (r *TaskRepo) UnassignOrphans(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET assigned_to_id=NULL, status=?, accepted=?, updated_at=? WHERE `+orphanCondition,
		string(model.StatusPending), false, now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
