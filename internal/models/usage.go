package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageUsage is the metered consumption of one channel for one period.
// Count only grows; Reserved tracks sends submitted but not yet confirmed.
type MessageUsage struct {
	OrganisationID uuid.UUID `json:"organisation_id"`
	Channel        Channel   `json:"channel"`
	PeriodStart    time.Time `json:"period_start"`
	Count          int       `json:"count"`
	Reserved       int       `json:"reserved"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PeriodStart returns the first instant of the calendar month containing t, in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Delivery receipt statuses
const (
	ReceiptStatusReserved  = "reserved"
	ReceiptStatusConfirmed = "confirmed"
	ReceiptStatusReleased  = "released"
	ReceiptStatusExpired   = "expired"
)

// DeliveryReceipt tracks one provider message from submission to its
// confirmed or released outcome. ProviderMessageID is unique.
type DeliveryReceipt struct {
	ProviderMessageID  string     `json:"provider_message_id"`
	OrganisationID     uuid.UUID  `json:"organisation_id"`
	Channel            Channel    `json:"channel"`
	PostID             *uuid.UUID `json:"post_id,omitempty"`
	ContactID          *uuid.UUID `json:"contact_id,omitempty"`
	PeriodStart        time.Time  `json:"period_start"`
	Status             string     `json:"status"`
	LastProviderStatus *string    `json:"last_provider_status,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// UsageSummary is the dashboard view of one metered channel.
type UsageSummary struct {
	Channel     Channel   `json:"channel"`
	PeriodStart time.Time `json:"period_start"`
	Count       int       `json:"count"`
	Reserved    int       `json:"reserved"`
	Limit       int       `json:"limit"`
	Unlimited   bool      `json:"unlimited"`
	Percent     float64   `json:"percent"`
}
