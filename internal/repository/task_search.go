package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/taskflow/internal/model"
)

// TaskQuery defines filters & pagination for listing tasks.
type TaskQuery struct {
	ProjectID  uint64
	AssigneeID uint64
	CreatorID  uint64
	ClientID   uint64 // only tasks of projects owned by this client
	Statuses   []model.TaskStatus
	Priority   model.Priority
	Search     string // matched against title and description
	Page       int
	PageSize   int
}

// normalize clamps pagination to sane bounds.
func (q *TaskQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
}

// Search returns one page of tasks matching q and the total match count.
func (r *TaskRepo) Search(ctx context.Context, q TaskQuery) ([]model.Task, int64, error) {
	q.normalize()
	where := []string{}
	args := []any{}

	if q.ProjectID != 0 {
		where = append(where, "t.project_id = ?")
		args = append(args, q.ProjectID)
	}
	if q.AssigneeID != 0 {
		where = append(where, "t.assigned_to_id = ?")
		args = append(args, q.AssigneeID)
	}
	if q.CreatorID != 0 {
		where = append(where, "t.creator_id = ?")
		args = append(args, q.CreatorID)
	}
	if q.ClientID != 0 {
		where = append(where, "t.project_id IN (SELECT p.id FROM projects p WHERE p.client_id = ?)")
		args = append(args, q.ClientID)
	}
	if len(q.Statuses) > 0 {
		where = append(where, "t.status IN ("+placeholders(len(q.Statuses))+")")
		for _, s := range q.Statuses {
			args = append(args, string(s))
		}
	}
	if q.Priority != "" {
		where = append(where, "t.priority = ?")
		args = append(args, string(q.Priority))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, "(LOWER(t.title) LIKE ? OR LOWER(t.description) LIKE ?)")
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks t WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := "SELECT " + taskColumns + ` FROM tasks t WHERE ` + cond + `
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := collectTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
