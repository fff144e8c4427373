package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/realtime"
)

// Invalidator drops cached responses for the given request paths.
type Invalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

// RoleSyncer pushes a user's role to the external auth provider.
type RoleSyncer interface {
	PushRole(ctx context.Context, externalID string, role model.Role) error
}

// Effects bundles the side-effect sinks shared by the services.  Nil
// fields are replaced by no-ops.
type Effects struct {
	Bus   realtime.Broadcaster
	Cache Invalidator
	Log   *zap.Logger
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, ...string) error { return nil }

func (e Effects) withDefaults() Effects {
	if e.Bus == nil {
		e.Bus = realtime.Discard{}
	}
	if e.Cache == nil {
		e.Cache = nopInvalidator{}
	}
	if e.Log == nil {
		e.Log = zap.NewNop()
	}
	return e
}

// publish broadcasts events in order; failures are logged only.
func (e Effects) publish(ctx context.Context, events ...realtime.Event) {
	for _, ev := range events {
		if err := e.Bus.Publish(ctx, ev); err != nil {
			e.Log.Warn("realtime publish failed",
				zap.String("channel", ev.Channel()), zap.String("event", ev.Name()), zap.Error(err))
		}
	}
}

func (e Effects) invalidate(ctx context.Context, paths ...string) {
	if err := e.Cache.Invalidate(ctx, paths...); err != nil {
		e.Log.Warn("cache invalidation failed", zap.Strings("paths", paths), zap.Error(err))
	}
}

// Cached paths touched by mutations.
const (
	pathTasks         = "/v1/tasks"
	pathProjects      = "/v1/projects"
	pathTeams         = "/v1/teams"
	pathDashboard     = "/v1/dashboard"
	pathNotifications = "/v1/notifications"
	pathUsers         = "/v1/users"
	pathMe            = "/v1/me"
	pathBilling       = "/v1/billing"
	pathTime          = "/v1/time"
	pathTimeActive    = "/v1/time/active"
	pathNavigation    = "/v1/navigation"
)

// rolePaths are the responses that depend on the caller's role.
var rolePaths = []string{pathUsers, pathMe, pathDashboard, pathNavigation, pathTasks, pathProjects}

func taskPaths(t model.Task) []string {
	paths := []string{pathTasks, fmt.Sprintf("%s/%d", pathTasks, t.ID), pathDashboard}
	if t.ProjectID != nil {
		paths = append(paths, fmt.Sprintf("%s/%d/board", pathProjects, *t.ProjectID))
	}
	return paths
}

func projectPaths(id uint64) []string {
	return []string{pathProjects, fmt.Sprintf("%s/%d", pathProjects, id), pathDashboard}
}

func teamPaths(id uint64) []string {
	return []string{pathTeams, fmt.Sprintf("%s/%d", pathTeams, id)}
}

// authenticated rejects the zero caller.
func authenticated(caller model.User) error {
	if caller.ID == 0 || !caller.Role.Valid() {
		return ErrUnauthenticated
	}
	return nil
}
