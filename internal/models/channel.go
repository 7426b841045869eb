package models

import "time"

// ChannelConfig maps a destination phone number on a gateway to the tenant
// that owns it. Resolution happens during inbound processing; a missing
// mapping is a legitimate outcome, not an error in the lookup itself.
type ChannelConfig struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Gateway        string    `json:"gateway"`
	PhoneNumber    string    `json:"phone_number"`
	Session        string    `json:"session,omitempty"`
	ReplyEnabled   bool      `json:"reply_enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
