package models

import "encoding/json"

// CanonicalMessage is the normalized shape of an inbound chat message,
// independent of which gateway delivered it. It is ephemeral: only the
// surrounding WebhookEvent is persisted.
type CanonicalMessage struct {
	MessageID      string          `json:"message_id"`
	Gateway        string          `json:"gateway"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Text           string          `json:"text"`
	MessageType    string          `json:"message_type"`
	Timestamp      int64           `json:"timestamp"`
	Session        string          `json:"session,omitempty"`
	CustomerPhone  string          `json:"customer_phone"`
	CustomerName   string          `json:"customer_name,omitempty"`
	OrganizationID string          `json:"organization_id,omitempty"`
	RawData        json.RawMessage `json:"raw_data,omitempty"`
}
