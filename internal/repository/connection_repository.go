package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/taskflow/internal/model"
)

// ConnectionRepo persists third-party workspace connections.  Tokens are
// stored as ciphertext produced by the integrations package.
type ConnectionRepo struct{ db *sql.DB }

func NewConnectionRepo(db *sql.DB) *ConnectionRepo { return &ConnectionRepo{db: db} }

// Upsert stores the connection, replacing a previous one for the same
// user and provider.
func (r *ConnectionRepo) Upsert(ctx context.Context, c *model.Connection) error {
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

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM connections WHERE user_id=? AND provider=?", c.UserID, string(c.Provider)); err != nil {
		return err
	}
	ts := now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO connections (user_id,provider,account_id,account_name,token_ciphertext,scopes,created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		c.UserID, string(c.Provider), c.AccountID, c.AccountName, c.TokenCiphertext, c.Scopes, ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	c.ID = uint64(id)
	c.CreatedAt = ts
	return nil
}

func (r *ConnectionRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Connection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id,user_id,provider,account_id,account_name,token_ciphertext,scopes,created_at
		 FROM connections WHERE user_id=? ORDER BY provider`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Connection{}
	for rows.Next() {
		var (
			c        model.Connection
			provider string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &provider, &c.AccountID, &c.AccountName,
			&c.TokenCiphertext, &c.Scopes, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Provider = model.Provider(provider)
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ConnectionRepo) Delete(ctx context.Context, userID uint64, provider model.Provider) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM connections WHERE user_id=? AND provider=?", userID, string(provider))
	if err != nil {
		return err
	}
	return affected(res)
}
