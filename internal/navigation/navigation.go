// Package navigation holds the single role to navigation table used by the
// sidebar endpoint and the dashboard redirect.
package navigation

import (
	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/policy"
)

// Item is one navigation entry.  Capability is the action a user needs for
// the page to be useful; entries are filtered through policy.Can.
type Item struct {
	Path       string        `json:"path"`
	Label      string        `json:"label"`
	Capability policy.Action `json:"capability"`
}

var homes = map[model.Role]string{
	model.RoleManager:    "/manager",
	model.RoleTeamLeader: "/team-leader",
	model.RoleEmployee:   "/employee",
	model.RoleClient:     "/client",
	model.RoleAdmin:      "/admin",
}

var table = map[model.Role][]Item{
	model.RoleManager: {
		{"/manager", "Dashboard", policy.ProjectCreate},
		{"/manager/projects", "Projects", policy.ProjectCreate},
		{"/manager/tasks", "Tasks", policy.TaskCreate},
		{"/manager/teams", "Teams", policy.TeamCreate},
		{"/manager/kanban", "Kanban", policy.TaskStatus},
		{"/manager/users", "Users", policy.UserList},
		{"/billing", "Billing", policy.BillingView},
		{"/connections", "Connections", policy.ConnectionManage},
	},
	model.RoleTeamLeader: {
		{"/team-leader", "Dashboard", policy.TaskAssign},
		{"/team-leader/tasks", "Tasks", policy.TaskAssign},
		{"/team-leader/team", "My team", policy.TeamMembers},
		{"/team-leader/kanban", "Kanban", policy.TaskStatus},
		{"/team-leader/meetings", "Meetings", policy.MeetingCreate},
		{"/billing", "Billing", policy.BillingView},
		{"/connections", "Connections", policy.ConnectionManage},
	},
	model.RoleEmployee: {
		{"/employee", "Dashboard", policy.TaskView},
		{"/employee/tasks", "My tasks", policy.TaskAccept},
		{"/employee/time", "Time tracking", policy.TimeTrack},
		{"/employee/kanban", "Kanban", policy.TaskStatus},
		{"/billing", "Billing", policy.BillingView},
		{"/connections", "Connections", policy.ConnectionManage},
	},
	model.RoleClient: {
		{"/client", "Dashboard", policy.ProjectView},
		{"/client/projects", "Projects", policy.ProjectView},
		{"/client/feedback", "Feedback", policy.CommentCreate},
		{"/billing", "Billing", policy.BillingView},
		{"/connections", "Connections", policy.ConnectionManage},
	},
	model.RoleAdmin: {
		{"/admin", "Dashboard", policy.UserRole},
		{"/admin/users", "Users", policy.UserRole},
		{"/admin/billing", "Billing", policy.BillingUpdate},
		{"/admin/projects", "Projects", policy.ProjectView},
	},
}

// For returns the ordered navigation for role, keeping only entries whose
// capability the role holds on its own resources.  Unknown roles get nil.
func For(role model.Role) []Item {
	items := table[role]
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if policy.Can(role, it.Capability, policy.Owned(true)) {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Home is the dashboard path for role, "/" for unknown roles.
func Home(role model.Role) string {
	if p, ok := homes[role]; ok {
		return p
	}
	return "/"
}
