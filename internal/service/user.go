package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/policy"
	"github.com/iliyamo/taskflow/internal/repository"
)

// UserService manages profiles, roles and billing, and mirrors the auth
// provider's user lifecycle into the users table.
type UserService struct {
	users *repository.UserRepo
	roles RoleSyncer
	fx    Effects
}

// NewUserService builds the service; roles may be nil when no auth
// provider is configured.
func NewUserService(users *repository.UserRepo, roles RoleSyncer, fx Effects) *UserService {
	return &UserService{users: users, roles: roles, fx: fx.withDefaults()}
}

// DefaultRole is given to users whose provider metadata carries no role.
const DefaultRole = model.RoleEmployee

type ProfileInput struct {
	Name       *string   `json:"name"`
	Skills     *[]string `json:"skills"`
	Experience *int      `json:"experience"`
}

// Billing is the plan summary shown on the billing page.
type Billing struct {
	UserID  uint64     `json:"user_id"`
	Tier    model.Tier `json:"tier"`
	Credits int        `json:"credits"`
}

type BillingInput struct {
	Tier    string `json:"tier"`
	Credits *int   `json:"credits"`
}

// ExternalUser is the identity the auth provider reports for a user.
// Role is the raw public metadata value and may be empty.
type ExternalUser struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// Caller resolves the authenticated external id into a user row.
func (s *UserService) Caller(ctx context.Context, externalID string) (model.User, error) {
	if externalID == "" {
		return model.User{}, ErrUnauthenticated
	}
	u, err := s.users.GetByExternalID(ctx, externalID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrUnauthenticated
	}
	return u, err
}

func (s *UserService) Me(ctx context.Context, caller model.User) (model.User, error) {
	if err := authenticated(caller); err != nil {
		return model.User{}, err
	}
	u, err := s.users.GetByID(ctx, caller.ID)
	return u, fromRepo(err, "user")
}

func (s *UserService) UpdateProfile(ctx context.Context, caller model.User, in ProfileInput) (model.User, error) {
	u, err := s.Me(ctx, caller)
	if err != nil {
		return model.User{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return model.User{}, invalid("name is required")
		}
		u.Name = name
	}
	if in.Skills != nil {
		u.Skills = model.CleanSkills(*in.Skills)
	}
	if in.Experience != nil {
		if *in.Experience < 0 || *in.Experience > 80 {
			return model.User{}, invalid("experience must be between 0 and 80 years")
		}
		u.Experience = *in.Experience
	}
	if err := s.users.UpdateProfile(ctx, u.ID, u.Name, u.Skills, u.Experience); err != nil {
		return model.User{}, fromRepo(err, "user")
	}
	s.fx.invalidate(ctx, pathMe, pathUsers)
	return s.users.GetByID(ctx, u.ID)
}

// List returns users, optionally of one role.
func (s *UserService) List(ctx context.Context, caller model.User, role string) ([]model.User, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	if !policy.Can(caller.Role, policy.UserList, policy.Any) {
		return nil, forbidden("list users")
	}
	var r model.Role
	if role != "" {
		var ok bool
		if r, ok = model.ParseRole(role); !ok {
			return nil, invalid("unknown role %q", role)
		}
	}
	return s.users.List(ctx, r)
}

// SetRole changes a user's role and pushes it to the auth provider.
func (s *UserService) SetRole(ctx context.Context, caller model.User, userID uint64, role string) (model.User, error) {
	if err := authenticated(caller); err != nil {
		return model.User{}, err
	}
	if !policy.Can(caller.Role, policy.UserRole, policy.Any) {
		return model.User{}, forbidden("change roles")
	}
	r, ok := model.ParseRole(role)
	if !ok {
		return model.User{}, invalid("unknown role %q", role)
	}
	if err := s.users.SetRole(ctx, userID, r); err != nil {
		return model.User{}, fromRepo(err, "user")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, fromRepo(err, "user")
	}
	s.fx.Log.Info("role changed", zap.Uint64("user_id", userID), zap.String("role", r.String()),
		zap.Uint64("by", caller.ID))
	pushRole(ctx, s.roles, s.fx, u.ExternalID, r)
	s.fx.invalidate(ctx, rolePaths...)
	return u, nil
}

// Billing returns the plan of userID; zero means the caller.
func (s *UserService) Billing(ctx context.Context, caller model.User, userID uint64) (Billing, error) {
	if err := authenticated(caller); err != nil {
		return Billing{}, err
	}
	if userID == 0 {
		userID = caller.ID
	}
	if !policy.Can(caller.Role, policy.BillingView, policy.Owned(userID == caller.ID)) {
		return Billing{}, forbidden("view this billing plan")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Billing{}, fromRepo(err, "user")
	}
	return Billing{UserID: u.ID, Tier: u.Tier, Credits: u.Credits}, nil
}

func (s *UserService) SetBilling(ctx context.Context, caller model.User, userID uint64, in BillingInput) (Billing, error) {
	if err := authenticated(caller); err != nil {
		return Billing{}, err
	}
	if !policy.Can(caller.Role, policy.BillingUpdate, policy.Any) {
		return Billing{}, forbidden("change billing plans")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Billing{}, fromRepo(err, "user")
	}
	tier, credits := u.Tier, u.Credits
	if in.Tier != "" {
		tier = model.Tier(strings.ToUpper(strings.TrimSpace(in.Tier)))
		if !tier.Valid() {
			return Billing{}, invalid("unknown tier %q", in.Tier)
		}
	}
	if in.Credits != nil {
		if *in.Credits < 0 {
			return Billing{}, invalid("credits cannot be negative")
		}
		credits = *in.Credits
	}
	if err := s.users.SetBilling(ctx, userID, tier, credits); err != nil {
		return Billing{}, fromRepo(err, "user")
	}
	s.fx.invalidate(ctx, pathBilling)
	return Billing{UserID: userID, Tier: tier, Credits: credits}, nil
}

// SyncExternal creates or updates the user behind an auth provider
// identity and pushes the effective role back to the provider.  A missing
// or unknown role gives new users DefaultRole and leaves the stored role
// of existing users untouched.
func (s *UserService) SyncExternal(ctx context.Context, ext ExternalUser) (model.User, bool, error) {
	if ext.ID == "" {
		return model.User{}, false, invalid("external id is required")
	}
	role, ok := model.ParseRole(ext.Role)
	name := strings.TrimSpace(ext.Name)
	if name == "" {
		name = ext.Email
	}

	created := false
	u, err := s.users.GetByExternalID(ctx, ext.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if !ok {
			role = DefaultRole
		}
		u = model.User{ExternalID: ext.ID, Email: ext.Email, Name: name, Role: role, Skills: []string{}}
		if err := s.users.Create(ctx, &u); err != nil {
			return model.User{}, false, fromRepo(err, "user")
		}
		created = true
	case err != nil:
		return model.User{}, false, err
	default:
		email := ext.Email
		if email == "" {
			email = u.Email
		}
		if name == "" {
			name = u.Name
		}
		if !ok {
			role = u.Role
		}
		if err := s.users.UpdateIdentity(ctx, u.ID, email, name, role); err != nil {
			return model.User{}, false, fromRepo(err, "user")
		}
		if u, err = s.users.GetByID(ctx, u.ID); err != nil {
			return model.User{}, false, err
		}
	}
	s.fx.Log.Info("user synced", zap.String("external_id", ext.ID), zap.Bool("created", created),
		zap.String("role", role.String()))
	if created || string(role) != ext.Role {
		pushRole(ctx, s.roles, s.fx, ext.ID, role)
	}
	s.fx.invalidate(ctx, pathUsers)
	return u, created, nil
}

// DeleteExternal removes the user behind an auth provider identity.  Tasks
// assigned to them are repaired lazily; deleting an unknown user is not an
// error.
func (s *UserService) DeleteExternal(ctx context.Context, externalID string) error {
	if externalID == "" {
		return invalid("external id is required")
	}
	err := s.users.DeleteByExternalID(ctx, externalID)
	if errors.Is(err, repository.ErrNotFound) {
		s.fx.Log.Debug("deleted user was never synced", zap.String("external_id", externalID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete user %s: %w", externalID, err)
	}
	s.fx.Log.Info("user deleted", zap.String("external_id", externalID))
	s.fx.invalidate(ctx, pathUsers)
	return nil
}
