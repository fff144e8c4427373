// Package policy decides which role may perform which action.  Every
// service operation asks Can before touching the database; no other package
// compares role names.
package policy

import "github.com/iliyamo/taskflow/internal/model"

// Action names an operation in "<resource>:<verb>" form.
type Action string

const (
	TaskView     Action = "task:view"
	TaskCreate   Action = "task:create"
	TaskEdit     Action = "task:edit"
	TaskDelete   Action = "task:delete"
	TaskAssign   Action = "task:assign"
	TaskUnassign Action = "task:unassign"
	TaskStart    Action = "task:start"
	TaskAccept   Action = "task:accept"
	TaskDecline  Action = "task:decline"
	TaskComplete Action = "task:complete"
	TaskStatus   Action = "task:status"

	ProjectView     Action = "project:view"
	ProjectCreate   Action = "project:create"
	ProjectUpdate   Action = "project:update"
	ProjectDelete   Action = "project:delete"
	ProjectProgress Action = "project:progress"

	TeamView    Action = "team:view"
	TeamCreate  Action = "team:create"
	TeamUpdate  Action = "team:update"
	TeamMembers Action = "team:members"

	CommentCreate Action = "comment:create"
	MeetingCreate Action = "meeting:create"
	MeetingUpdate Action = "meeting:update"
	TimeTrack     Action = "time:track"

	UserList      Action = "user:list"
	UserRole      Action = "user:role"
	BillingView   Action = "billing:view"
	BillingUpdate Action = "billing:update"

	ConnectionManage Action = "connection:manage"
)

// Resource carries what the caller needs to know about the target.  Owned
// is true when the caller has the relationship the action depends on:
// assignee of the task, manager, client or team member of the project,
// leader of the team, or the account itself.
type Resource struct {
	Owned bool
}

// Any is the resource for actions that do not target a specific row.
var Any = Resource{}

// Owned is shorthand for a resource the caller is related to.
func Owned(owned bool) Resource { return Resource{Owned: owned} }

type rule struct {
	any   []model.Role // allowed regardless of ownership
	owned []model.Role // allowed only when Resource.Owned
}

var (
	staff    = []model.Role{model.RoleManager, model.RoleTeamLeader, model.RoleAdmin}
	managers = []model.Role{model.RoleManager, model.RoleAdmin}
	admin    = []model.Role{model.RoleAdmin}
	everyone = model.Roles
	workers  = []model.Role{model.RoleManager, model.RoleTeamLeader, model.RoleEmployee, model.RoleAdmin}
)

var rules = map[Action]rule{
	TaskView:     {any: staff, owned: everyone},
	TaskCreate:   {any: staff},
	TaskEdit:     {any: staff},
	TaskDelete:   {any: managers},
	TaskAssign:   {any: staff},
	TaskUnassign: {any: staff},
	TaskStart:    {owned: workers},
	TaskAccept:   {owned: workers},
	TaskDecline:  {owned: workers},
	TaskComplete: {any: managers, owned: workers},
	TaskStatus:   {any: staff, owned: workers},

	ProjectView:     {any: admin, owned: everyone},
	ProjectCreate:   {any: managers},
	ProjectUpdate:   {any: admin, owned: []model.Role{model.RoleManager}},
	ProjectDelete:   {any: admin, owned: []model.Role{model.RoleManager}},
	ProjectProgress: {any: admin, owned: []model.Role{model.RoleManager, model.RoleTeamLeader}},

	TeamView:    {any: managers, owned: []model.Role{model.RoleTeamLeader, model.RoleEmployee}},
	TeamCreate:  {any: managers},
	TeamUpdate:  {any: managers, owned: []model.Role{model.RoleTeamLeader}},
	TeamMembers: {any: managers, owned: []model.Role{model.RoleTeamLeader}},

	CommentCreate: {any: admin, owned: everyone},
	MeetingCreate: {any: admin, owned: []model.Role{model.RoleManager, model.RoleTeamLeader}},
	MeetingUpdate: {any: admin, owned: []model.Role{model.RoleManager, model.RoleTeamLeader}},
	TimeTrack:     {owned: workers},

	UserList:      {any: staff},
	UserRole:      {any: admin},
	BillingView:   {any: admin, owned: everyone},
	BillingUpdate: {any: admin},

	ConnectionManage: {owned: everyone},
}

// Can reports whether role may perform action on res.  Unknown roles and
// unknown actions are always denied.
func Can(role model.Role, action Action, res Resource) bool {
	r, ok := rules[action]
	if !ok || !role.Valid() {
		return false
	}
	if contains(r.any, role) {
		return true
	}
	return res.Owned && contains(r.owned, role)
}

// Actions lists every action known to the policy.
func Actions() []Action {
	out := make([]Action, 0, len(rules))
	for a := range rules {
		out = append(out, a)
	}
	return out
}

func contains(roles []model.Role, role model.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
