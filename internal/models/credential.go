package models

import (
	"time"

	"github.com/google/uuid"
)

// ChannelCredential is the bearer credential an organisation connected for a
// broadcast channel. Acquisition and refresh happen elsewhere.
type ChannelCredential struct {
	OrganisationID uuid.UUID  `json:"organisation_id"`
	Channel        Channel    `json:"channel"`
	AccountID      string     `json:"account_id"`
	AccessToken    string     `json:"-"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (c *ChannelCredential) IsUsable(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}
