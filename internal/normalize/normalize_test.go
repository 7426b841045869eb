package normalize

import (
	"testing"
)

func TestNormalize_WAHA(t *testing.T) {
	body := []byte(`{"message":{"id":"m1","from":"123","to":"456","text":{"body":"hi"},"type":"text","timestamp":1000},"session":"s1"}`)

	msg, err := New().Normalize(body)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if msg.Gateway != GatewayWAHA {
		t.Errorf("Gateway = %s, want %s", msg.Gateway, GatewayWAHA)
	}
	if msg.MessageID != "m1" {
		t.Errorf("MessageID = %s, want m1", msg.MessageID)
	}
	if msg.From != "123" {
		t.Errorf("From = %s, want 123", msg.From)
	}
	if msg.To != "456" {
		t.Errorf("To = %s, want 456", msg.To)
	}
	if msg.Text != "hi" {
		t.Errorf("Text = %s, want hi", msg.Text)
	}
	if msg.MessageType != "text" {
		t.Errorf("MessageType = %s, want text", msg.MessageType)
	}
	if msg.Timestamp != 1000 {
		t.Errorf("Timestamp = %d, want 1000", msg.Timestamp)
	}
	if msg.Session != "s1" {
		t.Errorf("Session = %s, want s1", msg.Session)
	}
	if msg.CustomerPhone != "123" {
		t.Errorf("CustomerPhone = %s, want 123", msg.CustomerPhone)
	}
	if len(msg.RawData) == 0 {
		t.Error("RawData should preserve the original payload")
	}
}

func TestNormalize_Business(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "ent1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "456", "phone_number_id": "pn1"},
					"contacts": [{"wa_id": "123", "profile": {"name": "Ada"}}],
					"messages": [{"id": "m2", "from": "123", "type": "text", "timestamp": "2000", "text": {"body": "hello"}}]
				}
			}]
		}]
	}`)

	msg, err := New().Normalize(body)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if msg.Gateway != GatewayBusiness {
		t.Errorf("Gateway = %s, want %s", msg.Gateway, GatewayBusiness)
	}
	if msg.MessageID != "m2" {
		t.Errorf("MessageID = %s, want m2", msg.MessageID)
	}
	if msg.From != "123" {
		t.Errorf("From = %s, want 123", msg.From)
	}
	if msg.To != "456" {
		t.Errorf("To = %s, want 456", msg.To)
	}
	if msg.Text != "hello" {
		t.Errorf("Text = %s, want hello", msg.Text)
	}
	if msg.Timestamp != 2000 {
		t.Errorf("Timestamp = %d, want 2000", msg.Timestamp)
	}
	if msg.CustomerName != "Ada" {
		t.Errorf("CustomerName = %s, want Ada", msg.CustomerName)
	}
}

func TestNormalize_BusinessInteractive(t *testing.T) {
	body := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"metadata": {"display_phone_number": "456"},
					"messages": [{"id": "m3", "from": "123", "type": "interactive", "timestamp": "3000",
						"interactive": {"type": "button_reply", "button_reply": {"id": "b1", "title": "Yes"}}}]
				}
			}]
		}]
	}`)

	msg, err := New().Normalize(body)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if msg.Text != "Yes" {
		t.Errorf("Text = %s, want Yes", msg.Text)
	}
	if msg.MessageType != "interactive" {
		t.Errorf("MessageType = %s, want interactive", msg.MessageType)
	}
}

func TestNormalize_Unrecognized(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"status-only business payload", `{"entry":[{"changes":[{"value":{"statuses":[{"id":"s1"}]}}]}]}`},
		{"unrelated shape", `{"foo":"bar"}`},
		{"not json", `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := New().Normalize([]byte(tt.body))
			if err != ErrUnrecognized {
				t.Errorf("Normalize() error = %v, want ErrUnrecognized", err)
			}
			if msg != nil {
				t.Errorf("Normalize() = %+v, want nil", msg)
			}
		})
	}
}
