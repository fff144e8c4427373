package model

import "time"

// Provider names a third-party workspace integration.
type Provider string

const (
	ProviderDiscord Provider = "discord"
	ProviderNotion  Provider = "notion"
	ProviderSlack   Provider = "slack"
)

func (p Provider) Valid() bool {
	return p == ProviderDiscord || p == ProviderNotion || p == ProviderSlack
}

// Connection links a user to a provider account.  The access token is kept
// encrypted and never serialised.
type Connection struct {
	ID              uint64    `json:"id"`
	UserID          uint64    `json:"user_id"`
	Provider        Provider  `json:"provider"`
	AccountID       string    `json:"account_id"`
	AccountName     string    `json:"account_name"`
	TokenCiphertext string    `json:"-"`
	Scopes          string    `json:"scopes"`
	CreatedAt       time.Time `json:"created_at"`
}
