package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses
const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusCanceling = "CANCELING"
	SubscriptionStatusCanceled  = "CANCELED"
	SubscriptionStatusExpired   = "EXPIRED"
)

type Plan struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	SMSLimit      int       `json:"sms_limit"`
	WhatsAppLimit int       `json:"whatsapp_limit"`
	BillingCycle  string    `json:"billing_cycle"` // monthly / yearly
	CreatedAt     time.Time `json:"created_at"`
}

// PlanLimits are the per-channel caps of an organisation's current plan.
// A limit of 0 means unlimited.
type PlanLimits struct {
	PlanID        uuid.UUID `json:"plan_id"`
	PlanName      string    `json:"plan_name"`
	SMSLimit      int       `json:"sms_limit"`
	WhatsAppLimit int       `json:"whatsapp_limit"`
}

func (l *PlanLimits) LimitFor(ch Channel) int {
	switch ch {
	case ChannelSMS:
		return l.SMSLimit
	case ChannelWhatsApp:
		return l.WhatsAppLimit
	}
	return 0
}
