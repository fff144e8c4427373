package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/policy"
	"github.com/iliyamo/taskflow/internal/realtime"
	"github.com/iliyamo/taskflow/internal/repository"
)

type ProjectService struct {
	projects *repository.ProjectRepo
	tasks    *repository.TaskRepo
	users    *repository.UserRepo
	teams    *repository.TeamRepo
	fx       Effects
}

func NewProjectService(projects *repository.ProjectRepo, tasks *repository.TaskRepo, users *repository.UserRepo,
	teams *repository.TeamRepo, fx Effects) *ProjectService {
	return &ProjectService{projects: projects, tasks: tasks, users: users, teams: teams, fx: fx.withDefaults()}
}

// ProjectInput is the payload of Create.  ManagerID may only be set by
// admins; it defaults to the caller.
type ProjectInput struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Status         string  `json:"status"`
	ManagerID      *uint64 `json:"manager_id"`
	ClientID       *uint64 `json:"client_id"`
	TeamID         *uint64 `json:"team_id"`
	DeriveProgress bool    `json:"derive_progress"`
}

// ProjectUpdate lists the fields Update may change; nil fields are kept.
type ProjectUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	ClientID    *uint64 `json:"client_id"`
	TeamID      *uint64 `json:"team_id"`
	ClearClient bool    `json:"clear_client"`
	ClearTeam   bool    `json:"clear_team"`
}

// ProgressInput either sets a manual percentage or switches the project
// to progress derived from its tasks.
type ProgressInput struct {
	Progress *int `json:"progress"`
	Derive   bool `json:"derive"`
}

func (s *ProjectService) Create(ctx context.Context, caller model.User, in ProjectInput) (model.Project, error) {
	if err := authenticated(caller); err != nil {
		return model.Project{}, err
	}
	if !policy.Can(caller.Role, policy.ProjectCreate, policy.Any) {
		return model.Project{}, forbidden("create projects")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Project{}, invalid("name is required")
	}
	status := model.ProjectPlanning
	if in.Status != "" {
		st, ok := model.ParseProjectStatus(in.Status)
		if !ok {
			return model.Project{}, invalid("unknown project status %q", in.Status)
		}
		status = st
	}
	p := model.Project{
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		Status:         status,
		DeriveProgress: in.DeriveProgress,
		ManagerID:      caller.ID,
	}
	if in.ManagerID != nil && *in.ManagerID != caller.ID {
		if caller.Role != model.RoleAdmin {
			return model.Project{}, forbidden("create projects for another manager")
		}
		if err := s.requireRole(ctx, *in.ManagerID, "manager", model.RoleManager, model.RoleAdmin); err != nil {
			return model.Project{}, err
		}
		p.ManagerID = *in.ManagerID
	}
	if in.ClientID != nil {
		if err := s.requireRole(ctx, *in.ClientID, "client", model.RoleClient); err != nil {
			return model.Project{}, err
		}
		p.ClientID = in.ClientID
	}
	if in.TeamID != nil {
		if _, err := s.teams.Get(ctx, *in.TeamID); err != nil {
			return model.Project{}, fromRepo(err, "team")
		}
		p.TeamID = in.TeamID
	}
	if err := s.projects.Create(ctx, &p); err != nil {
		return model.Project{}, err
	}
	s.fx.Log.Info("project created", zap.Uint64("project_id", p.ID), zap.Uint64("manager_id", p.ManagerID))
	s.fx.publish(ctx, realtime.ProjectCreated{Project: p})
	s.fx.invalidate(ctx, projectPaths(p.ID)...)
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, caller model.User, id uint64) (model.Project, error) {
	if err := authenticated(caller); err != nil {
		return model.Project{}, err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	if err := s.authorize(ctx, caller, p, policy.ProjectView, "view this project"); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// List returns the projects the caller manages, owns as client or reaches
// through a team.  Admins see every project.
func (s *ProjectService) List(ctx context.Context, caller model.User, status string) ([]model.Project, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	var f repository.ProjectFilter
	if status != "" {
		st, ok := model.ParseProjectStatus(status)
		if !ok {
			return nil, invalid("unknown project status %q", status)
		}
		f.Status = st
	}
	if !policy.Can(caller.Role, policy.ProjectView, policy.Any) {
		f.ManagerID, f.ClientID, f.MemberID = caller.ID, caller.ID, caller.ID
	}
	return s.projects.List(ctx, f)
}

func (s *ProjectService) Update(ctx context.Context, caller model.User, id uint64, in ProjectUpdate) (model.Project, error) {
	if err := authenticated(caller); err != nil {
		return model.Project{}, err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	if err := s.authorize(ctx, caller, p, policy.ProjectUpdate, "update this project"); err != nil {
		return model.Project{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return model.Project{}, invalid("name is required")
		}
		p.Name = name
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		st, ok := model.ParseProjectStatus(*in.Status)
		if !ok {
			return model.Project{}, invalid("unknown project status %q", *in.Status)
		}
		p.Status = st
	}
	switch {
	case in.ClearClient:
		p.ClientID = nil
	case in.ClientID != nil:
		if err := s.requireRole(ctx, *in.ClientID, "client", model.RoleClient); err != nil {
			return model.Project{}, err
		}
		p.ClientID = in.ClientID
	}
	switch {
	case in.ClearTeam:
		p.TeamID = nil
	case in.TeamID != nil:
		if _, err := s.teams.Get(ctx, *in.TeamID); err != nil {
			return model.Project{}, fromRepo(err, "team")
		}
		p.TeamID = in.TeamID
	}
	if err := s.projects.Update(ctx, &p); err != nil {
		return model.Project{}, fromRepo(err, "project")
	}
	s.fx.publish(ctx, realtime.ProjectUpdated{Project: p})
	s.fx.invalidate(ctx, projectPaths(p.ID)...)
	return p, nil
}

// Delete removes the project together with its tasks, comments and
// meetings.
func (s *ProjectService) Delete(ctx context.Context, caller model.User, id uint64) error {
	if err := authenticated(caller); err != nil {
		return err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, caller, p, policy.ProjectDelete, "delete this project"); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return fromRepo(err, "project")
	}
	s.fx.Log.Info("project deleted", zap.Uint64("project_id", id), zap.Uint64("user_id", caller.ID))
	s.fx.publish(ctx, realtime.ProjectDeleted{ID: id})
	s.fx.invalidate(ctx, append(projectPaths(id), pathTasks)...)
	return nil
}

// UpdateProgress sets a manual percentage or switches to derived progress,
// which is recomputed immediately.
func (s *ProjectService) UpdateProgress(ctx context.Context, caller model.User, id uint64, in ProgressInput) (model.Project, error) {
	if err := authenticated(caller); err != nil {
		return model.Project{}, err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	if err := s.authorize(ctx, caller, p, policy.ProjectProgress, "update the progress of this project"); err != nil {
		return model.Project{}, err
	}
	switch {
	case in.Derive:
		done, total, err := s.projects.TaskCounts(ctx, id)
		if err != nil {
			return model.Project{}, err
		}
		p.Progress, p.DeriveProgress = model.DerivedProgress(done, total), true
	case in.Progress != nil:
		if *in.Progress < 0 || *in.Progress > 100 {
			return model.Project{}, invalid("progress must be between 0 and 100")
		}
		p.Progress, p.DeriveProgress = *in.Progress, false
	default:
		return model.Project{}, invalid("progress or derive is required")
	}
	if err := s.projects.SetProgress(ctx, id, p.Progress, p.DeriveProgress); err != nil {
		return model.Project{}, fromRepo(err, "project")
	}
	s.fx.publish(ctx, realtime.ProjectProgressUpdated{ID: id, Progress: p.Progress})
	s.fx.invalidate(ctx, projectPaths(id)...)
	return p, nil
}

// Board returns the project's tasks grouped into Kanban columns.
func (s *ProjectService) Board(ctx context.Context, caller model.User, id uint64) (model.Board, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return model.Board{}, err
	}
	tasks, err := s.tasks.ListByProject(ctx, id)
	if err != nil {
		return model.Board{}, err
	}
	return model.NewBoard(id, tasks), nil
}

func (s *ProjectService) load(ctx context.Context, id uint64) (model.Project, error) {
	p, err := s.projects.Get(ctx, id)
	return p, fromRepo(err, "project")
}

func (s *ProjectService) authorize(ctx context.Context, caller model.User, p model.Project, action policy.Action, what string) error {
	owned, err := related(ctx, s.projects, caller, p)
	if err != nil {
		return err
	}
	if !policy.Can(caller.Role, action, policy.Owned(owned)) {
		return forbidden(what)
	}
	return nil
}

func (s *ProjectService) requireRole(ctx context.Context, userID uint64, what string, roles ...model.Role) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fromRepo(err, what)
	}
	for _, r := range roles {
		if u.Role == r {
			return nil
		}
	}
	return invalid("user %d cannot be the %s", userID, what)
}

// related reports whether the caller manages the project, is its client or
// belongs to its team.
func related(ctx context.Context, projects *repository.ProjectRepo, caller model.User, p model.Project) (bool, error) {
	if p.ManagerID == caller.ID || (p.ClientID != nil && *p.ClientID == caller.ID) {
		return true, nil
	}
	if p.TeamID == nil {
		return false, nil
	}
	return projects.IsMember(ctx, p.ID, caller.ID)
}

// syncProgress recomputes derived progress after a task change.  Failures
// are logged only.
func syncProgress(ctx context.Context, projects *repository.ProjectRepo, fx Effects, projectID uint64) {
	p, err := projects.Get(ctx, projectID)
	if err != nil {
		fx.Log.Warn("progress sync: project lookup failed", zap.Uint64("project_id", projectID), zap.Error(err))
		return
	}
	if !p.DeriveProgress {
		return
	}
	done, total, err := projects.TaskCounts(ctx, projectID)
	if err != nil {
		fx.Log.Warn("progress sync: counting tasks failed", zap.Uint64("project_id", projectID), zap.Error(err))
		return
	}
	progress := model.DerivedProgress(done, total)
	if progress == p.Progress {
		return
	}
	if err := projects.SetProgress(ctx, projectID, progress, true); err != nil {
		fx.Log.Warn("progress sync failed", zap.Uint64("project_id", projectID), zap.Error(err))
		return
	}
	fx.publish(ctx, realtime.ProjectProgressUpdated{ID: projectID, Progress: progress})
	fx.invalidate(ctx, projectPaths(projectID)...)
}
