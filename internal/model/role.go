package model

import "strings"

// Role identifies a user's permission class.
type Role string

const (
	RoleManager    Role = "MANAGER"
	RoleTeamLeader Role = "TEAM_LEADER"
	RoleEmployee   Role = "EMPLOYEE"
	RoleClient     Role = "CLIENT"
	RoleAdmin      Role = "ADMIN"
)

// Roles lists every role in a stable order.
var Roles = []Role{RoleManager, RoleTeamLeader, RoleEmployee, RoleClient, RoleAdmin}

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleTeamLeader, RoleEmployee, RoleClient, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
