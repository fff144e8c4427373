package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/taskflow/internal/model"
)

// CommentRepo persists project comments.
type CommentRepo struct{ db *sql.DB }

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{db: db} }

func (r *CommentRepo) Create(ctx context.Context, c *model.Comment) error {
	ts := now()
	var rating any
	if c.Rating != nil {
		rating = *c.Rating
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO comments (project_id,author_id,content,rating,created_at) VALUES (?,?,?,?,?)",
		c.ProjectID, c.AuthorID, c.Content, rating, ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	c.CreatedAt = ts
	return nil
}

// ListByProject returns the project's comments, newest first, with the
// author's display name.
func (r *CommentRepo) ListByProject(ctx context.Context, projectID uint64) ([]model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id,c.project_id,c.author_id,u.name,c.content,c.rating,c.created_at
		 FROM comments c JOIN users u ON u.id = c.author_id
		 WHERE c.project_id=? ORDER BY c.created_at DESC, c.id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Comment{}
	for rows.Next() {
		var (
			c      model.Comment
			rating sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.AuthorID, &c.Author, &c.Content, &rating, &c.CreatedAt); err != nil {
			return nil, err
		}
		if rating.Valid {
			v := int(rating.Int64)
			c.Rating = &v
		}
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
