package normalize

import (
	"encoding/json"
	"strconv"

	"github.com/shohag/hookwave/internal/models"
)

// WhatsApp Business Cloud API nests the message under
// entry[0].changes[0].value.messages[0], with contact profile data and the
// business number carried alongside.
type businessPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Metadata         struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Type      string `json:"type"`
					Timestamp string `json:"timestamp"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text"`
					Interactive *struct {
						Type        string `json:"type"`
						ButtonReply *struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"button_reply"`
						ListReply *struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"list_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type businessMatcher struct{}

func (businessMatcher) Gateway() string { return GatewayBusiness }

func (businessMatcher) Match(body []byte) (*models.CanonicalMessage, bool) {
	var p businessPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, false
	}
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil, false
	}

	value := p.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil, false
	}
	m := value.Messages[0]
	if m.ID == "" {
		return nil, false
	}

	ts, _ := strconv.ParseInt(m.Timestamp, 10, 64)

	text := ""
	switch {
	case m.Text != nil:
		text = m.Text.Body
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		text = m.Interactive.ButtonReply.Title
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		text = m.Interactive.ListReply.Title
	}

	msg := &models.CanonicalMessage{
		MessageID:   m.ID,
		From:        m.From,
		To:          value.Metadata.DisplayPhoneNumber,
		Text:        text,
		MessageType: m.Type,
		Timestamp:   ts,
	}
	if len(value.Contacts) > 0 {
		msg.CustomerName = value.Contacts[0].Profile.Name
	}
	return msg, true
}
