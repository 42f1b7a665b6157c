package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actors
const (
	ActorScheduler = "scheduler"
	ActorUser      = "user"
)

// Audit actions on campaign posts
const (
	AuditPostSent           = "post_sent"
	AuditPostFailed         = "post_failed"
	AuditPostRetryScheduled = "post_retry_scheduled"
	AuditPostRequeued       = "post_requeued"
)

const EntityCampaignPost = "campaign_post"

// AuditLog is one state-changing action on an organisation's entity.
type AuditLog struct {
	ID             uuid.UUID  `json:"id"`
	OrganisationID *uuid.UUID `json:"organisation_id,omitempty"`
	ActorUserID    *uuid.UUID `json:"actor_user_id,omitempty"`
	ActorType      string     `json:"actor_type"`
	Action         string     `json:"action"`
	EntityType     string     `json:"entity_type"`
	EntityID       *uuid.UUID `json:"entity_id,omitempty"`
	Meta           any        `json:"meta,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
