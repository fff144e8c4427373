package model

import "time"

// Team is a group of users led by one of them.  Projects reference a team
// to decide which members see them.
type Team struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	LeaderID  *uint64   `json:"leader_id,omitempty"`
	Members   []User    `json:"members"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasMember reports whether userID is in the member list.
func (t Team) HasMember(userID uint64) bool {
	for _, m := range t.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}
