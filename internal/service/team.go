package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/policy"
	"github.com/iliyamo/taskflow/internal/realtime"
	"github.com/iliyamo/taskflow/internal/repository"
)

type TeamService struct {
	teams *repository.TeamRepo
	users *repository.UserRepo
	roles RoleSyncer
	fx    Effects
}

// NewTeamService builds the service; roles may be nil when no auth
// provider is configured.
func NewTeamService(teams *repository.TeamRepo, users *repository.UserRepo, roles RoleSyncer, fx Effects) *TeamService {
	return &TeamService{teams: teams, users: users, roles: roles, fx: fx.withDefaults()}
}

type TeamInput struct {
	Name      string   `json:"name"`
	LeaderID  *uint64  `json:"leader_id"`
	MemberIDs []uint64 `json:"member_ids"`
}

type TeamUpdate struct {
	Name     *string `json:"name"`
	LeaderID *uint64 `json:"leader_id"`
}

func (s *TeamService) Create(ctx context.Context, caller model.User, in TeamInput) (model.Team, error) {
	if err := authenticated(caller); err != nil {
		return model.Team{}, err
	}
	if !policy.Can(caller.Role, policy.TeamCreate, policy.Any) {
		return model.Team{}, forbidden("create teams")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Team{}, invalid("name is required")
	}
	t := model.Team{Name: name}
	if in.LeaderID != nil {
		if _, err := s.leader(ctx, *in.LeaderID); err != nil {
			return model.Team{}, err
		}
		t.LeaderID = in.LeaderID
	}
	members := make([]model.User, 0, len(in.MemberIDs))
	for _, id := range in.MemberIDs {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return model.Team{}, fromRepo(err, "member")
		}
		members = append(members, u)
	}
	if err := s.teams.Create(ctx, &t); err != nil {
		return model.Team{}, err
	}
	for _, u := range members {
		if err := s.teams.AddMember(ctx, t.ID, u.ID); err != nil && !errors.Is(err, repository.ErrConflict) {
			return model.Team{}, err
		}
		s.fx.publish(ctx, realtime.MemberAdded{TeamID: t.ID, User: u})
	}
	s.fx.Log.Info("team created", zap.Uint64("team_id", t.ID), zap.Int("members", len(members)))
	s.fx.invalidate(ctx, teamPaths(t.ID)...)
	return s.load(ctx, t.ID)
}

func (s *TeamService) Get(ctx context.Context, caller model.User, id uint64) (model.Team, error) {
	if err := authenticated(caller); err != nil {
		return model.Team{}, err
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return model.Team{}, err
	}
	owned := leads(t, caller.ID) || t.HasMember(caller.ID)
	if !policy.Can(caller.Role, policy.TeamView, policy.Owned(owned)) {
		return model.Team{}, forbidden("view this team")
	}
	return t, nil
}

// List returns every team for managers and the caller's own teams for
// everyone else who may see teams.
func (s *TeamService) List(ctx context.Context, caller model.User) ([]model.Team, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	if policy.Can(caller.Role, policy.TeamView, policy.Any) {
		return s.teams.List(ctx, 0)
	}
	if !policy.Can(caller.Role, policy.TeamView, policy.Owned(true)) {
		return nil, forbidden("view teams")
	}
	return s.teams.List(ctx, caller.ID)
}

func (s *TeamService) Update(ctx context.Context, caller model.User, id uint64, in TeamUpdate) (model.Team, error) {
	t, err := s.manage(ctx, caller, id, policy.TeamUpdate, "update this team")
	if err != nil {
		return model.Team{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return model.Team{}, invalid("name is required")
		}
		t.Name = name
	}
	if in.LeaderID != nil {
		if !policy.Can(caller.Role, policy.TeamUpdate, policy.Any) {
			return model.Team{}, forbidden("change the team leader")
		}
		if _, err := s.leader(ctx, *in.LeaderID); err != nil {
			return model.Team{}, err
		}
		t.LeaderID = in.LeaderID
	}
	if err := s.teams.Update(ctx, &t); err != nil {
		return model.Team{}, fromRepo(err, "team")
	}
	s.fx.invalidate(ctx, teamPaths(id)...)
	return t, nil
}

func (s *TeamService) AddMember(ctx context.Context, caller model.User, teamID, userID uint64) (model.Team, error) {
	if _, err := s.manage(ctx, caller, teamID, policy.TeamMembers, "manage this team"); err != nil {
		return model.Team{}, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Team{}, fromRepo(err, "user")
	}
	if u.Role == model.RoleClient {
		return model.Team{}, invalid("clients cannot join teams")
	}
	if err := s.teams.AddMember(ctx, teamID, userID); err != nil {
		return model.Team{}, fromRepo(err, "team member")
	}
	s.fx.publish(ctx, realtime.MemberAdded{TeamID: teamID, User: u})
	s.fx.invalidate(ctx, append(teamPaths(teamID), pathProjects)...)
	return s.load(ctx, teamID)
}

func (s *TeamService) RemoveMember(ctx context.Context, caller model.User, teamID, userID uint64) (model.Team, error) {
	if _, err := s.manage(ctx, caller, teamID, policy.TeamMembers, "manage this team"); err != nil {
		return model.Team{}, err
	}
	if err := s.teams.RemoveMember(ctx, teamID, userID); err != nil {
		return model.Team{}, fromRepo(err, "team member")
	}
	s.fx.publish(ctx, realtime.MemberRemoved{TeamID: teamID, UserID: userID})
	s.fx.invalidate(ctx, append(teamPaths(teamID), pathProjects)...)
	return s.load(ctx, teamID)
}

// UpdateMemberRole promotes a member to TEAM_LEADER, making them the team's
// leader, or demotes them back to EMPLOYEE, which ends their leadership of
// every team.  The new role is pushed to the auth provider.
func (s *TeamService) UpdateMemberRole(ctx context.Context, caller model.User, teamID, userID uint64, role string) (model.Team, error) {
	t, err := s.manage(ctx, caller, teamID, policy.TeamMembers, "manage this team")
	if err != nil {
		return model.Team{}, err
	}
	r, ok := model.ParseRole(role)
	if !ok || (r != model.RoleEmployee && r != model.RoleTeamLeader) {
		return model.Team{}, invalid("member role must be EMPLOYEE or TEAM_LEADER")
	}
	if !t.HasMember(userID) && !leads(t, userID) {
		return model.Team{}, fromRepo(repository.ErrNotFound, "team member")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Team{}, fromRepo(err, "user")
	}
	if u.Role != model.RoleEmployee && u.Role != model.RoleTeamLeader {
		return model.Team{}, invalid("only employees and team leaders change role here")
	}

	if err := s.users.SetRole(ctx, userID, r); err != nil {
		return model.Team{}, fromRepo(err, "user")
	}
	switch {
	case r == model.RoleTeamLeader && !leads(t, userID):
		t.LeaderID = &u.ID
		if err := s.teams.Update(ctx, &t); err != nil {
			return model.Team{}, fromRepo(err, "team")
		}
	case r == model.RoleEmployee:
		n, err := s.teams.ClearLeader(ctx, userID)
		if err != nil {
			return model.Team{}, err
		}
		if n > 0 {
			s.fx.Log.Info("leadership cleared", zap.Uint64("user_id", userID), zap.Int64("teams", n))
		}
	}

	s.fx.Log.Info("member role updated", zap.Uint64("team_id", teamID), zap.Uint64("user_id", userID),
		zap.String("role", r.String()))
	s.fx.publish(ctx, realtime.MemberRoleUpdated{TeamID: teamID, UserID: userID, Role: r})
	pushRole(ctx, s.roles, s.fx, u.ExternalID, r)
	s.fx.invalidate(ctx, append(teamPaths(teamID), rolePaths...)...)
	return s.load(ctx, teamID)
}

func (s *TeamService) load(ctx context.Context, id uint64) (model.Team, error) {
	t, err := s.teams.Get(ctx, id)
	return t, fromRepo(err, "team")
}

// manage loads a team the caller leads or may manage outright.
func (s *TeamService) manage(ctx context.Context, caller model.User, id uint64, action policy.Action, what string) (model.Team, error) {
	if err := authenticated(caller); err != nil {
		return model.Team{}, err
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return model.Team{}, err
	}
	if !policy.Can(caller.Role, action, policy.Owned(leads(t, caller.ID))) {
		return model.Team{}, forbidden(what)
	}
	return t, nil
}

func (s *TeamService) leader(ctx context.Context, id uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, fromRepo(err, "leader")
	}
	if u.Role != model.RoleTeamLeader && u.Role != model.RoleManager {
		return model.User{}, invalid("user %d cannot lead a team", id)
	}
	return u, nil
}

func leads(t model.Team, userID uint64) bool {
	return t.LeaderID != nil && *t.LeaderID == userID
}

// pushRole syncs a role to the auth provider; failures are logged only.
func pushRole(ctx context.Context, roles RoleSyncer, fx Effects, externalID string, r model.Role) {
	if roles == nil || externalID == "" {
		return
	}
	if err := roles.PushRole(ctx, externalID, r); err != nil {
		fx.Log.Warn("role push failed", zap.String("external_id", externalID), zap.Error(err))
	}
}
