package model

import "time"

// Tier is the billing plan shown on the billing page.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

func (t Tier) Valid() bool {
	return t == TierFree || t == TierPro || t == TierEnterprise
}

// User represents an application user record as stored in the `users`
// table.  ExternalID is the identity key issued by the auth provider; it is
// the subject of bearer tokens and the suffix of the user's notification
// channel.  Users are created on the provider's first sign-in event.
type User struct {
	ID         uint64    `json:"id"`          // users.id
	ExternalID string    `json:"external_id"` // users.external_id
	Email      string    `json:"email"`       // users.email
	Name       string    `json:"name"`        // users.name
	Role       Role      `json:"role"`        // users.role
	Skills     []string  `json:"skills"`      // users.skills (JSON list)
	Experience int       `json:"experience"`  // users.experience, in years
	Tier       Tier      `json:"tier"`        // users.tier
	Credits    int       `json:"credits"`     // users.credits
	CreatedAt  time.Time `json:"created_at"`  // users.created_at
	UpdatedAt  time.Time `json:"updated_at"`  // users.updated_at
}

// HasSkills reports whether the user holds every skill in required,
// compared case-insensitively.
func (u User) HasSkills(required []string) bool {
	have := make(map[string]bool, len(u.Skills))
	for _, s := range u.Skills {
		have[normalizeSkill(s)] = true
	}
	for _, s := range required {
		if !have[normalizeSkill(s)] {
			return false
		}
	}
	return true
}
