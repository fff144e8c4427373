package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/taskflow/internal/model"
)

const projectColumns = "p.id,p.name,p.description,p.status,p.progress,p.derive_progress,p.manager_id,p.client_id,p.team_id,p.created_at,p.updated_at"

// ProjectRepo persists projects.  Deleting a project cascades to its tasks,
// comments and meetings through foreign keys.
type ProjectRepo struct{ db *sql.DB }

func NewProjectRepo(db *sql.DB) *ProjectRepo { return &ProjectRepo{db: db} }

func scanProject(s rowScanner) (model.Project, error) {
	var (
		p        model.Project
		status   string
		clientID sql.NullInt64
		teamID   sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &status, &p.Progress, &p.DeriveProgress,
		&p.ManagerID, &clientID, &teamID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Project{}, err
	}
	p.Status = model.ProjectStatus(status)
	p.ClientID, p.TeamID = idPtr(clientID), idPtr(teamID)
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return p, nil
}

// Create inserts p and fills its ID and timestamps.
func (r *ProjectRepo) Create(ctx context.Context, p *model.Project) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (name,description,status,progress,derive_progress,manager_id,client_id,team_id,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.Name, p.Description, string(p.Status), p.Progress, p.DeriveProgress, p.ManagerID,
		nullableID(p.ClientID), nullableID(p.TeamID), ts, ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt, p.UpdatedAt = ts, ts
	return nil
}

func (r *ProjectRepo) Get(ctx context.Context, id uint64) (model.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects p WHERE p.id=? LIMIT 1", id))
	return p, notFound(err)
}

// Update writes every mutable column of p.
func (r *ProjectRepo) Update(ctx context.Context, p *model.Project) error {
	p.UpdatedAt = now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name=?, description=?, status=?, progress=?, derive_progress=?,
		        manager_id=?, client_id=?, team_id=?, updated_at=? WHERE id=?`,
		p.Name, p.Description, string(p.Status), p.Progress, p.DeriveProgress, p.ManagerID,
		nullableID(p.ClientID), nullableID(p.TeamID), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *ProjectRepo) SetProgress(ctx context.Context, id uint64, progress int, derive bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE projects SET progress=?, derive_progress=?, updated_at=? WHERE id=?",
		progress, derive, now(), id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *ProjectRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id=?", id)
	if err != nil {
		return err
	}
	return affected(res)
}

// ProjectFilter selects the projects a caller may see.  Zero fields are
// ignored; a filter with every field zero lists all projects.  The
// relationship fields are ORed together.
type ProjectFilter struct {
	ManagerID uint64 // projects managed by this user
	ClientID  uint64 // projects owned by this client
	MemberID  uint64 // projects whose team has this member
	Status    model.ProjectStatus
}

func (r *ProjectRepo) List(ctx context.Context, f ProjectFilter) ([]model.Project, error) {
	var (
		rel  []string
		args []any
	)
	if f.ManagerID != 0 {
		rel = append(rel, "p.manager_id=?")
		args = append(args, f.ManagerID)
	}
	if f.ClientID != 0 {
		rel = append(rel, "p.client_id=?")
		args = append(args, f.ClientID)
	}
	if f.MemberID != 0 {
		rel = append(rel, "p.team_id IN ("+teamsOfUser+")")
		args = append(args, f.MemberID, f.MemberID)
	}
	cond := "1=1"
	if len(rel) > 0 {
		cond = "(" + strings.Join(rel, " OR ") + ")"
	}
	if f.Status != "" {
		cond += " AND p.status=?"
		args = append(args, string(f.Status))
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+projectColumns+" FROM projects p WHERE "+cond+" ORDER BY p.created_at DESC, p.id DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// teamsOfUser selects the teams a user belongs to or leads; it takes the
// user id twice.
const teamsOfUser = `SELECT tm.team_id FROM team_members tm WHERE tm.user_id=?
	UNION SELECT t.id FROM teams t WHERE t.leader_id=?`

// IsMember reports whether userID belongs to or leads the team attached
// to the project.
func (r *ProjectRepo) IsMember(ctx context.Context, projectID, userID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM projects p WHERE p.id=? AND p.team_id IN ("+teamsOfUser+")",
		projectID, userID, userID).Scan(&n)
	return n > 0, err
}

// ParticipantIDs returns the manager, the client, the team leader and every
// team member of the project, without duplicates, ordered by id.
func (r *ProjectRepo) ParticipantIDs(ctx context.Context, projectID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id FROM users u WHERE u.id IN (
		     SELECT manager_id FROM projects WHERE id=?
		     UNION SELECT client_id FROM projects WHERE id=? AND client_id IS NOT NULL
		     UNION SELECT tm.user_id FROM team_members tm JOIN projects p ON p.team_id = tm.team_id WHERE p.id=?
		     UNION SELECT t.leader_id FROM teams t JOIN projects p ON p.team_id = t.id WHERE p.id=? AND t.leader_id IS NOT NULL
		 ) ORDER BY u.id`, projectID, projectID, projectID, projectID)
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

// TaskCounts returns how many of the project's tasks are done and how many
// exist in total.
func (r *ProjectRepo) TaskCounts(ctx context.Context, projectID uint64) (done, total int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END),0), COUNT(*) FROM tasks WHERE project_id=?`,
		string(model.StatusDone), projectID).Scan(&done, &total)
	return done, total, err
}
