package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/taskflow/internal/model"
)

const userColumns = "id,external_id,email,name,role,skills,experience,tier,credits,created_at,updated_at"

// UserRepo persists the users table.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

func scanUser(s rowScanner) (model.User, error) {
	var (
		u      model.User
		role   string
		tier   string
		skills string
	)
	err := s.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &role, &skills,
		&u.Experience, &tier, &u.Credits, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.Tier = model.Tier(tier)
	u.Skills = decodeList(skills)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// Create inserts u and fills its ID and timestamps.  A second user with the
// same external id yields ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	ts := now()
	if u.Tier == "" {
		u.Tier = model.TierFree
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (external_id,email,name,role,skills,experience,tier,credits,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.ExternalID, u.Email, u.Name, string(u.Role), encodeList(u.Skills),
		u.Experience, string(u.Tier), u.Credits, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	u.CreatedAt, u.UpdatedAt = ts, ts
	return nil
}

// GetByID fetches a user by primary key.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	return u, notFound(err)
}

// GetByExternalID fetches a user by the auth provider's identity key.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE external_id=? LIMIT 1", externalID))
	return u, notFound(err)
}

// Exists reports whether a user row with id is present.
func (r *UserRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id=?", id).Scan(&n)
	return n > 0, err
}

// List returns users ordered by name, optionally restricted to one role.
func (r *UserRepo) List(ctx context.Context, role model.Role) ([]model.User, error) {
	q := "SELECT " + userColumns + " FROM users"
	args := []any{}
	if role != "" {
		q += " WHERE role=?"
		args = append(args, string(role))
	}
	q += " ORDER BY name, id"
	rows, err := r.db.QueryContext(ctx, q, args...)
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

// UpdateIdentity rewrites the fields owned by the auth provider.
func (r *UserRepo) UpdateIdentity(ctx context.Context, id uint64, email, name string, role model.Role) error {
	return r.exec(ctx, "UPDATE users SET email=?, name=?, role=?, updated_at=? WHERE id=?",
		strings.ToLower(strings.TrimSpace(email)), name, string(role), now(), id)
}

// UpdateProfile rewrites the user-editable profile fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name string, skills []string, experience int) error {
	return r.exec(ctx, "UPDATE users SET name=?, skills=?, experience=?, updated_at=? WHERE id=?",
		name, encodeList(skills), experience, now(), id)
}

func (r *UserRepo) SetRole(ctx context.Context, id uint64, role model.Role) error {
	return r.exec(ctx, "UPDATE users SET role=?, updated_at=? WHERE id=?", string(role), now(), id)
}

func (r *UserRepo) SetBilling(ctx context.Context, id uint64, tier model.Tier, credits int) error {
	return r.exec(ctx, "UPDATE users SET tier=?, credits=?, updated_at=? WHERE id=?",
		string(tier), credits, now(), id)
}

// DeleteByExternalID removes the user.  Rows that reference the user with a
// foreign key cascade; task assignments are left for the orphan repair.
func (r *UserRepo) DeleteByExternalID(ctx context.Context, externalID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE external_id=?", externalID)
	if err != nil {
		return err
	}
	return affected(res)
}

// Candidate is a user together with the number of unfinished tasks
// currently assigned to them.
type Candidate struct {
	model.User
	OpenTasks int
}

// ListCandidates returns users of role with their open task count.
func (r *UserRepo) ListCandidates(ctx context.Context, role model.Role) ([]Candidate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id,u.external_id,u.email,u.name,u.role,u.skills,u.experience,u.tier,u.credits,u.created_at,u.updated_at,
		        (SELECT COUNT(*) FROM tasks t WHERE t.assigned_to_id = u.id AND t.status <> ?) AS open_tasks
		 FROM users u WHERE u.role=? ORDER BY u.id`,
		string(model.StatusDone), string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Candidate{}
	for rows.Next() {
		var (
			c      Candidate
			role   string
			tier   string
			skills string
		)
		if err := rows.Scan(&c.ID, &c.ExternalID, &c.Email, &c.Name, &role, &skills,
			&c.Experience, &tier, &c.Credits, &c.CreatedAt, &c.UpdatedAt, &c.OpenTasks); err != nil {
			return nil, err
		}
		c.Role, c.Tier, c.Skills = model.Role(role), model.Tier(tier), decodeList(skills)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *UserRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return affected(res)
}

// affected turns a zero-row update into ErrNotFound.
func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
