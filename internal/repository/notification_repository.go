package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/taskflow/internal/model"
)

// NotificationRepo persists per-user notifications.
type NotificationRepo struct{ db *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Create inserts n.  There is no deduplication: the same event twice
// yields two rows.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	ts := now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO notifications (user_id,title,message,type,is_read,link,created_at) VALUES (?,?,?,?,?,?,?)",
		n.UserID, n.Title, n.Message, string(n.Type), false, nullableString(n.Link), ts)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	n.Read = false
	n.CreatedAt = ts
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64, unreadOnly bool) ([]model.Notification, error) {
	q := "SELECT id,user_id,title,message,type,is_read,link,created_at FROM notifications WHERE user_id=?"
	if unreadOnly {
		q += " AND is_read=0"
	}
	q += " ORDER BY created_at DESC, id DESC"
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var (
			n    model.Notification
			typ  string
			link sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &typ, &n.Read, &link, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = model.NotificationType(typ)
		n.Link = stringPtr(link)
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one notification as read.  Notifications of other users
// are reported as ErrNotFound.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id uint64) error {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE id=? AND user_id=?", id, userID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	_, err := r.db.ExecContext(ctx, "UPDATE notifications SET is_read=1 WHERE id=? AND user_id=?", id, userID)
	return err
}

// MarkAllRead flags every unread notification of the user and returns how
// many changed.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE notifications SET is_read=1 WHERE user_id=? AND is_read=0", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id=? AND is_read=0", userID).Scan(&n)
	return n, err
}
