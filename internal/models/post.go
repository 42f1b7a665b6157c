package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PostState string

// Post states
const (
	PostStatePending PostState = "pending"
	PostStateClaimed PostState = "claimed"
	PostStateSent    PostState = "sent"
	PostStateFailed  PostState = "failed"
)

// Valid state transitions: from -> []to
var ValidPostTransitions = map[PostState][]PostState{
	PostStatePending: {PostStateClaimed},
	PostStateClaimed: {PostStateSent, PostStatePending, PostStateFailed},
	PostStateSent:    {},
	PostStateFailed:  {PostStatePending},
}

func IsValidPostTransition(from, to PostState) bool {
	allowed, ok := ValidPostTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// CampaignPost is a queued campaign message for one channel.
type CampaignPost struct {
	ID             uuid.UUID       `json:"id"`
	CampaignID     uuid.UUID       `json:"campaign_id"`
	OrganisationID uuid.UUID       `json:"organisation_id"`
	Channel        Channel         `json:"channel"`
	Subject        *string         `json:"subject,omitempty"`
	Text           string          `json:"text"`
	MediaURLs      []string        `json:"media_urls,omitempty"`
	Link           *string         `json:"link,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ScheduledAt    *time.Time      `json:"scheduled_at,omitempty"`
	State          PostState       `json:"state"`
	Attempts       int             `json:"attempts"`
	NextAttemptAt  *time.Time      `json:"next_attempt_at,omitempty"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsDue reports whether the post should be picked up by a tick at now.
func (p *CampaignPost) IsDue(now time.Time) bool {
	if p.State != PostStatePending || p.ScheduledAt == nil || p.ScheduledAt.After(now) {
		return false
	}
	return p.NextAttemptAt == nil || !p.NextAttemptAt.After(now)
}

// DecodeMetadata returns the typed metadata variant for the post's channel.
func (p *CampaignPost) DecodeMetadata() (Metadata, error) {
	return DecodeMetadata(p.Channel, p.Metadata)
}
