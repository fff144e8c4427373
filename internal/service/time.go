package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/policy"
	"github.com/iliyamo/taskflow/internal/repository"
)

// TimeService tracks work on tasks.  A user has at most one running entry;
// the database enforces it, so concurrent starts cannot both succeed.
type TimeService struct {
	entries *repository.TimeEntryRepo
	tasks   *repository.TaskRepo
	fx      Effects
}

func NewTimeService(entries *repository.TimeEntryRepo, tasks *repository.TaskRepo, fx Effects) *TimeService {
	return &TimeService{entries: entries, tasks: tasks, fx: fx.withDefaults()}
}

type TimeStartInput struct {
	TaskID      uint64 `json:"task_id"`
	Description string `json:"description"`
}

// ErrTimerRunning is returned by Start while another entry is open.
var ErrTimerRunning = errors.New("a timer is already running")

func (s *TimeService) Start(ctx context.Context, caller model.User, in TimeStartInput) (model.TimeEntry, error) {
	if err := authenticated(caller); err != nil {
		return model.TimeEntry{}, err
	}
	if in.TaskID == 0 {
		return model.TimeEntry{}, invalid("task_id is required")
	}
	t, err := s.tasks.Get(ctx, in.TaskID)
	if err != nil {
		return model.TimeEntry{}, fromRepo(err, "task")
	}
	if !policy.Can(caller.Role, policy.TimeTrack, policy.Owned(t.IsAssignedTo(caller.ID))) {
		return model.TimeEntry{}, forbidden("track time on this task")
	}
	e := model.TimeEntry{UserID: caller.ID, TaskID: t.ID, Description: strings.TrimSpace(in.Description)}
	if err := s.entries.Start(ctx, &e); err != nil {
		if errors.Is(err, repository.ErrOpenEntryExists) {
			return model.TimeEntry{}, fmt.Errorf("%w: %w", ErrConflict, ErrTimerRunning)
		}
		return model.TimeEntry{}, err
	}
	s.fx.Log.Debug("timer started", zap.Uint64("entry_id", e.ID), zap.Uint64("task_id", t.ID))
	s.fx.invalidate(ctx, pathTime, pathTimeActive)
	return e, nil
}

// Stop closes the caller's running entry.
func (s *TimeService) Stop(ctx context.Context, caller model.User) (model.TimeEntry, error) {
	if err := authenticated(caller); err != nil {
		return model.TimeEntry{}, err
	}
	e, err := s.entries.Stop(ctx, caller.ID)
	if err != nil {
		return model.TimeEntry{}, fromRepo(err, "running timer")
	}
	s.fx.invalidate(ctx, pathTime, pathTimeActive)
	return e, nil
}

// List returns the caller's entries, optionally for one task.
func (s *TimeService) List(ctx context.Context, caller model.User, taskID uint64) ([]model.TimeEntry, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	return s.entries.List(ctx, caller.ID, taskID)
}

// TaskTotal is the closed time tracked on a task by every user.
type TaskTotal struct {
	TaskID  uint64 `json:"task_id"`
	Seconds int64  `json:"seconds"`
}

// Total sums the closed entries of a task the caller may see.
func (s *TimeService) Total(ctx context.Context, caller model.User, taskID uint64) (TaskTotal, error) {
	if err := authenticated(caller); err != nil {
		return TaskTotal{}, err
	}
	if taskID == 0 {
		return TaskTotal{}, invalid("task_id is required")
	}
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return TaskTotal{}, fromRepo(err, "task")
	}
	if !policy.Can(caller.Role, policy.TaskView, policy.Owned(t.IsAssignedTo(caller.ID))) {
		return TaskTotal{}, forbidden("view time on this task")
	}
	d, err := s.entries.TotalForTask(ctx, t.ID)
	if err != nil {
		return TaskTotal{}, err
	}
	return TaskTotal{TaskID: t.ID, Seconds: int64(d / time.Second)}, nil
}

// Active returns the caller's running entry, or ErrNotFound.
func (s *TimeService) Active(ctx context.Context, caller model.User) (model.TimeEntry, error) {
	if err := authenticated(caller); err != nil {
		return model.TimeEntry{}, err
	}
	e, err := s.entries.Active(ctx, caller.ID)
	return e, fromRepo(err, "running timer")
}
