package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification statuses
const (
	NotificationStatusSuccess = "success"
	NotificationStatusPartial = "partial"
	NotificationStatusFailed  = "failed"
)

// Notification summarises one dispatch attempt for operators.
type Notification struct {
	ID             uuid.UUID  `json:"id"`
	OrganisationID uuid.UUID  `json:"organisation_id"`
	CampaignID     uuid.UUID  `json:"campaign_id"`
	PostID         *uuid.UUID `json:"post_id,omitempty"`
	Channel        Channel    `json:"channel"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Status         string     `json:"status"`
	SentCount      int        `json:"sent_count"`
	FailedCount    int        `json:"failed_count"`
	Errors         []string   `json:"errors,omitempty"`
	Terminal       bool       `json:"terminal"`
	CreatedAt      time.Time  `json:"created_at"`
}

// PostTransaction records a successful broadcast publish.
type PostTransaction struct {
	ID             uuid.UUID `json:"id"`
	PostID         uuid.UUID `json:"post_id"`
	CampaignID     uuid.UUID `json:"campaign_id"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	Channel        Channel   `json:"channel"`
	AccountID      string    `json:"account_id"`
	ExternalID     string    `json:"external_id"`
	CreatedAt      time.Time `json:"created_at"`
}
