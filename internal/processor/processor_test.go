package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/normalize"
	"github.com/shohag/hookwave/internal/storage"
)

type fakeSender struct {
	calls []string
	err   error
}

func (f *fakeSender) SendText(ctx context.Context, session, to, text string) error {
	f.calls = append(f.calls, session+"|"+to+"|"+text)
	return f.err
}

func setupProcessor(t *testing.T, sender Sender) (*Processor, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	normalizer := normalize.New()
	resolver := normalize.NewResolver(store)
	return New(normalizer, resolver, sender, "thanks!", zerolog.Nop()), store
}

func createChannel(t *testing.T, store storage.Storage, phone string, replyEnabled bool) {
	t.Helper()
	now := time.Now().UTC()
	err := store.CreateChannel(context.Background(), &models.ChannelConfig{
		ID:             models.NewID("ch"),
		OrganizationID: "org1",
		Gateway:        normalize.GatewayWAHA,
		PhoneNumber:    phone,
		Session:        "s1",
		ReplyEnabled:   replyEnabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}
}

func TestProcessor_ProcessWithReply(t *testing.T) {
	sender := &fakeSender{}
	p, store := setupProcessor(t, sender)
	createChannel(t, store, "456", true)

	msg := &models.CanonicalMessage{MessageID: "m1", From: "123", To: "456", CustomerPhone: "123"}
	result, err := p.Process(context.Background(), msg)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.AutoReplySent {
		t.Error("expected auto reply to be sent")
	}
	if result.Session != "s1" {
		t.Errorf("session = %s, want s1", result.Session)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "s1|123|thanks!" {
		t.Errorf("sender calls = %v", sender.calls)
	}
	if msg.OrganizationID != "org1" {
		t.Errorf("organization_id = %s, want org1", msg.OrganizationID)
	}
}

func TestProcessor_ReplyDisabled(t *testing.T) {
	sender := &fakeSender{}
	p, store := setupProcessor(t, sender)
	createChannel(t, store, "456", false)

	msg := &models.CanonicalMessage{MessageID: "m1", From: "123", To: "456", CustomerPhone: "123"}
	result, err := p.Process(context.Background(), msg)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.AutoReplySent {
		t.Error("reply disabled channel must not dispatch")
	}
	if len(sender.calls) != 0 {
		t.Errorf("sender calls = %v", sender.calls)
	}
}

func TestProcessor_ReplyFailureDoesNotFailProcessing(t *testing.T) {
	sender := &fakeSender{err: errors.New("gateway down")}
	p, store := setupProcessor(t, sender)
	createChannel(t, store, "456", true)

	msg := &models.CanonicalMessage{MessageID: "m1", From: "123", To: "456", CustomerPhone: "123"}
	result, err := p.Process(context.Background(), msg)
	if err != nil {
		t.Fatalf("reply failure must not fail processing: %v", err)
	}
	if result.AutoReplySent {
		t.Error("auto_reply_sent should be false when dispatch failed")
	}
}

func TestProcessor_UnresolvedOrganization(t *testing.T) {
	p, _ := setupProcessor(t, nil)

	msg := &models.CanonicalMessage{MessageID: "m1", From: "123", To: "999", CustomerPhone: "123"}
	_, err := p.Process(context.Background(), msg)
	if !errors.Is(err, normalize.ErrOrgNotResolved) {
		t.Errorf("err = %v, want ErrOrgNotResolved", err)
	}
}

func TestProcessor_HandleEvent(t *testing.T) {
	sender := &fakeSender{}
	p, store := setupProcessor(t, sender)
	createChannel(t, store, "456", true)

	payload := json.RawMessage(`{"message":{"id":"m1","from":"123","to":"456","text":{"body":"hi"},"type":"text","timestamp":1000},"session":"s9"}`)
	ev := &models.WebhookEvent{ID: "evt_1", Gateway: normalize.GatewayWAHA, EventType: "message.received", Payload: payload}

	result, err := p.HandleEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Session != "s9" {
		t.Errorf("session = %s, want s9 (payload session wins)", result.Session)
	}
	if !result.AutoReplySent {
		t.Error("expected auto reply")
	}
}

func TestProcessor_HandleEventUnrecognized(t *testing.T) {
	p, _ := setupProcessor(t, nil)

	ev := &models.WebhookEvent{ID: "evt_1", Gateway: normalize.GatewayWAHA, EventType: "message.received", Payload: json.RawMessage(`{"foo":"bar"}`)}
	_, err := p.HandleEvent(context.Background(), ev)
	if !errors.Is(err, normalize.ErrUnrecognized) {
		t.Errorf("err = %v, want ErrUnrecognized", err)
	}
}
