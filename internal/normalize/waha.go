package normalize

import (
	"encoding/json"

	"github.com/shohag/hookwave/internal/models"
)

// WAHA delivers a flat shape: a top-level "message" object plus the session
// name the WAHA instance runs under.
type wahaPayload struct {
	Session string `json:"session"`
	Event   string `json:"event"`
	Message *struct {
		ID        string `json:"id"`
		From      string `json:"from"`
		To        string `json:"to"`
		Type      string `json:"type"`
		Timestamp int64  `json:"timestamp"`
		Body      string `json:"body"`
		Text      *struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"message"`
}

type wahaMatcher struct{}

func (wahaMatcher) Gateway() string { return GatewayWAHA }

func (wahaMatcher) Match(body []byte) (*models.CanonicalMessage, bool) {
	var p wahaPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, false
	}
	if p.Message == nil || p.Message.ID == "" {
		return nil, false
	}

	text := p.Message.Body
	if p.Message.Text != nil {
		text = p.Message.Text.Body
	}
	messageType := p.Message.Type
	if messageType == "" {
		messageType = "text"
	}

	return &models.CanonicalMessage{
		MessageID:   p.Message.ID,
		From:        p.Message.From,
		To:          p.Message.To,
		Text:        text,
		MessageType: messageType,
		Timestamp:   p.Message.Timestamp,
		Session:     p.Session,
	}, true
}
