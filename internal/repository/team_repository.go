package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/taskflow/internal/model"
)

// TeamRepo persists teams and their membership.
type TeamRepo struct{ db *sql.DB }

func NewTeamRepo(db *sql.DB) *TeamRepo { return &TeamRepo{db: db} }

func (r *TeamRepo) Create(ctx context.Context, t *model.Team) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO teams (name,leader_id,created_at,updated_at) VALUES (?,?,?,?)",
		t.Name, nullableID(t.LeaderID), ts, ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.CreatedAt, t.UpdatedAt = ts, ts
	if t.Members == nil {
		t.Members = []model.User{}
	}
	return nil
}

// Get loads a team with its members.
func (r *TeamRepo) Get(ctx context.Context, id uint64) (model.Team, error) {
	var (
		t      model.Team
		leader sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id,name,leader_id,created_at,updated_at FROM teams WHERE id=? LIMIT 1", id).
		Scan(&t.ID, &t.Name, &leader, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Team{}, notFound(err)
	}
	t.LeaderID = idPtr(leader)
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	if t.Members, err = r.members(ctx, id); err != nil {
		return model.Team{}, err
	}
	return t, nil
}

// List returns teams ordered by name.  A non-zero memberID restricts the
// result to teams the user belongs to or leads.
func (r *TeamRepo) List(ctx context.Context, memberID uint64) ([]model.Team, error) {
	q := "SELECT id FROM teams"
	args := []any{}
	if memberID != 0 {
		q += " WHERE leader_id=? OR id IN (SELECT team_id FROM team_members WHERE user_id=?)"
		args = append(args, memberID, memberID)
	}
	q += " ORDER BY name, id"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// rows must be closed before issuing more queries on a single-connection pool
	out := make([]model.Team, 0, len(ids))
	for _, id := range ids {
		t, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *TeamRepo) Update(ctx context.Context, t *model.Team) error {
	t.UpdatedAt = now()
	res, err := r.db.ExecContext(ctx, "UPDATE teams SET name=?, leader_id=?, updated_at=? WHERE id=?",
		t.Name, nullableID(t.LeaderID), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

// ClearLeader removes userID as leader of every team and returns how many
// teams changed.
func (r *TeamRepo) ClearLeader(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE teams SET leader_id=NULL, updated_at=? WHERE leader_id=?", now(), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AddMember inserts the membership row; adding an existing member yields
// ErrConflict.
func (r *TeamRepo) AddMember(ctx context.Context, teamID, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO team_members (team_id,user_id,created_at) VALUES (?,?,?)", teamID, userID, now())
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *TeamRepo) RemoveMember(ctx context.Context, teamID, userID uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM team_members WHERE team_id=? AND user_id=?", teamID, userID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *TeamRepo) IsMember(ctx context.Context, teamID, userID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM team_members WHERE team_id=? AND user_id=?", teamID, userID).Scan(&n)
	return n > 0, err
}

func (r *TeamRepo) members(ctx context.Context, teamID uint64) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id,u.external_id,u.email,u.name,u.role,u.skills,u.experience,u.tier,u.credits,u.created_at,u.updated_at
		 FROM team_members tm JOIN users u ON u.id = tm.user_id
		 WHERE tm.team_id=? ORDER BY u.name, u.id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
