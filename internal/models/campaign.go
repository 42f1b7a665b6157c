package models

import (
	"time"

	"github.com/google/uuid"
)

type Campaign struct {
	ID             uuid.UUID  `json:"id"`
	OrganisationID uuid.UUID  `json:"organisation_id"`
	Name           string     `json:"name"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Contact is an organisation-scoped recipient. Campaigns reference contacts
// through campaign_contacts.
type Contact struct {
	ID             uuid.UUID `json:"id"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	Name           *string   `json:"name,omitempty"`
	Email          *string   `json:"email,omitempty"`
	Mobile         *string   `json:"mobile,omitempty"`
	WhatsApp       *string   `json:"whatsapp,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AddressFor returns the contact's address on a per-recipient channel, or ""
// when the contact cannot be reached there. WhatsApp falls back to the mobile number.
func (c *Contact) AddressFor(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return deref(c.Email)
	case ChannelSMS:
		return deref(c.Mobile)
	case ChannelWhatsApp:
		if v := deref(c.WhatsApp); v != "" {
			return v
		}
		return deref(c.Mobile)
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
