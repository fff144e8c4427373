package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/realtime"
	"github.com/iliyamo/taskflow/internal/repository"
)

// NotificationService writes notifications and pushes them to the
// recipient's private channel.
type NotificationService struct {
	notes *repository.NotificationRepo
	users *repository.UserRepo
	fx    Effects
}

func NewNotificationService(notes *repository.NotificationRepo, users *repository.UserRepo, fx Effects) *NotificationService {
	return &NotificationService{notes: notes, users: users, fx: fx.withDefaults()}
}

// Notify stores a notification for user and broadcasts it on
// notifications-<externalId>.  Repeated calls create repeated rows.
func (s *NotificationService) Notify(ctx context.Context, user model.User, typ model.NotificationType, title, message string, link *string) (model.Notification, error) {
	n := model.Notification{UserID: user.ID, Title: title, Message: message, Type: typ, Link: link}
	if err := s.notes.Create(ctx, &n); err != nil {
		return model.Notification{}, err
	}
	s.fx.publish(ctx, realtime.NewNotification{Recipient: user.ExternalID, Notification: n})
	s.fx.invalidate(ctx, pathNotifications)
	return n, nil
}

// notifyID is the side-effect form used by other services: it resolves the
// recipient and logs instead of returning errors.
func (s *NotificationService) notifyID(ctx context.Context, userID uint64, typ model.NotificationType, title, message string, link *string) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.fx.Log.Warn("notification recipient lookup failed",
			zap.Uint64("user_id", userID), zap.String("type", string(typ)), zap.Error(err))
		return
	}
	if _, err := s.Notify(ctx, u, typ, title, message, link); err != nil {
		s.fx.Log.Warn("notification failed",
			zap.Uint64("user_id", userID), zap.String("type", string(typ)), zap.Error(err))
	}
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, caller model.User, unreadOnly bool) ([]model.Notification, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	return s.notes.ListByUser(ctx, caller.ID, unreadOnly)
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, caller model.User, id uint64) error {
	if err := authenticated(caller); err != nil {
		return err
	}
	if err := s.notes.MarkRead(ctx, caller.ID, id); err != nil {
		return fromRepo(err, "notification")
	}
	s.fx.invalidate(ctx, pathNotifications)
	return nil
}

// MarkAllRead flags every unread notification of the caller.
func (s *NotificationService) MarkAllRead(ctx context.Context, caller model.User) (int64, error) {
	if err := authenticated(caller); err != nil {
		return 0, err
	}
	n, err := s.notes.MarkAllRead(ctx, caller.ID)
	if err != nil {
		return 0, err
	}
	s.fx.invalidate(ctx, pathNotifications)
	return n, nil
}

// UnreadCount returns the number of unread notifications of the caller.
func (s *NotificationService) UnreadCount(ctx context.Context, caller model.User) (int, error) {
	if err := authenticated(caller); err != nil {
		return 0, err
	}
	return s.notes.CountUnread(ctx, caller.ID)
}
