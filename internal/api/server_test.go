package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/hookwave/internal/config"
	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/normalize"
	"github.com/shohag/hookwave/internal/storage"
	"github.com/shohag/hookwave/internal/webhook"
)

const wahaBody = `{"message":{"id":"m1","from":"123","to":"456","text":{"body":"hi"},"type":"text","timestamp":1000},"session":"s1"}`

type testEnv struct {
	router http.Handler
	store  storage.Storage
	svc    *webhook.Service
}

func setupEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := &config.Config{}
	if mutate != nil {
		mutate(cfg)
	}

	svc := webhook.NewService(store, zerolog.Nop(), 3, 2)
	svc.Register(normalize.GatewayWAHA, "*", func(ctx context.Context, ev *models.WebhookEvent) (*webhook.HandlerResult, error) {
		return &webhook.HandlerResult{Session: "s1", AutoReplySent: true}, nil
	})

	server := NewServer(cfg, store, svc, normalize.New(), zerolog.Nop())
	return &testEnv{router: server.Router(), store: store, svc: svc}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (string, json.RawMessage, string) {
	t.Helper()
	var env struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope: %v (%s)", err, rec.Body.String())
	}
	return env.Message, env.Data, env.Error
}

func TestWhatsAppWebhook_NoSecretIsAccepted(t *testing.T) {
	env := setupEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewBufferString(wahaBody))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	_, data, _ := decodeEnvelope(t, rec)
	var out struct {
		EventID       string `json:"event_id"`
		Session       string `json:"session"`
		AutoReplySent bool   `json:"auto_reply_sent"`
	}
	json.Unmarshal(data, &out)
	if out.Session != "s1" || !out.AutoReplySent {
		t.Errorf("data = %s", data)
	}

	ev, _ := env.store.GetWebhookEvent(context.Background(), out.EventID)
	if ev == nil || ev.Status != models.EventCompleted {
		t.Errorf("event = %+v, want completed", ev)
	}
}

func TestWhatsAppWebhook_EventRowCarriesResolvedOrganization(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := env.store.CreateChannel(ctx, &models.ChannelConfig{
		ID:             models.NewID("ch"),
		OrganizationID: "org1",
		Gateway:        normalize.GatewayWAHA,
		PhoneNumber:    "456",
		Session:        "s1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewBufferString(wahaBody))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}

	events, err := env.store.ListWebhookEvents(ctx, storage.EventFilter{OrganizationID: "org1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("org-filtered listing returned %d events, want 1", len(events))
	}
	if events[0].OrganizationID != "org1" {
		t.Errorf("organization_id = %q, want org1", events[0].OrganizationID)
	}
	if events[0].Status != models.EventCompleted {
		t.Errorf("status = %s, want completed", events[0].Status)
	}
}

func TestWhatsAppWebhook_UnmappedNumberIsRecordedUnscoped(t *testing.T) {
	env := setupEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewBufferString(wahaBody))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}

	events, _ := env.store.ListWebhookEvents(context.Background(), storage.EventFilter{})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].OrganizationID != "" {
		t.Errorf("organization_id = %q, want empty for unmapped number", events[0].OrganizationID)
	}
}

func TestWhatsAppWebhook_BadSignatureRejectedBeforeNormalization(t *testing.T) {
	env := setupEnv(t, func(cfg *config.Config) {
		cfg.WhatsApp.SignatureSecret = "topsecret"
	})

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewBufferString(wahaBody))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	events, _ := env.store.ListWebhookEvents(context.Background(), storage.EventFilter{})
	if len(events) != 0 {
		t.Errorf("no event should be recorded for a rejected signature, got %d", len(events))
	}
}

func TestWhatsAppWebhook_ValidSignature(t *testing.T) {
	secret := "topsecret"
	env := setupEnv(t, func(cfg *config.Config) {
		cfg.WhatsApp.SignatureSecret = secret
	})

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(wahaBody))
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewBufferString(wahaBody))
	req.Header.Set("X-Hub-Signature-256", sig)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
}

func TestWhatsAppWebhook_UnrecognizedPayload(t *testing.T) {
	env := setupEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewBufferString(`{"foo":"bar"}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	msg, _, _ := decodeEnvelope(t, rec)
	if msg != "unrecognized webhook payload" {
		t.Errorf("message = %q", msg)
	}
}

func TestWhatsAppWebhook_ProcessingFailureIsDeferred(t *testing.T) {
	env := setupEnv(t, nil)
	env.svc.Register(normalize.GatewayWAHA, "*", func(ctx context.Context, ev *models.WebhookEvent) (*webhook.HandlerResult, error) {
		return nil, errors.New("downstream unavailable")
	})

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewBufferString(wahaBody))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}

	events, _ := env.store.ListWebhookEvents(context.Background(), storage.EventFilter{Status: models.EventFailed})
	if len(events) != 1 {
		t.Fatalf("expected 1 failed event, got %d", len(events))
	}
	if events[0].LastError != "downstream unavailable" {
		t.Errorf("last_error = %s", events[0].LastError)
	}
}

func TestWhatsAppWebhook_VerifyChallenge(t *testing.T) {
	env := setupEnv(t, func(cfg *config.Config) {
		cfg.WhatsApp.VerifyToken = "tok"
	})

	req := httptest.NewRequest(http.MethodGet, "/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Errorf("body = %q, want challenge echoed", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestWebhookEvents_CreateValidation(t *testing.T) {
	env := setupEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook-events", bytes.NewBufferString(`{"event_type":"message.received"}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookEvents_RetryEligibility(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	// Missing id.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook-events/evt_missing/retry", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d, want 404", rec.Code)
	}

	// Pending event is not eligible.
	ev, _ := env.svc.Create(ctx, "waha", "message.received", nil, "")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhook-events/"+ev.ID+"/retry", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("pending: status = %d, want 400", rec.Code)
	}
}

func TestWebhookEvents_BulkRetryPartial(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	env.svc.Register(normalize.GatewayWAHA, "*", func(ctx context.Context, ev *models.WebhookEvent) (*webhook.HandlerResult, error) {
		return nil, errors.New("fail first")
	})
	a, _ := env.svc.Create(ctx, "waha", "message.received", nil, "")
	b, _ := env.svc.Create(ctx, "waha", "message.received", nil, "")
	env.svc.Execute(ctx, a.ID) // a fails, becomes eligible
	// b stays pending, ineligible

	env.svc.Register(normalize.GatewayWAHA, "*", func(ctx context.Context, ev *models.WebhookEvent) (*webhook.HandlerResult, error) {
		return &webhook.HandlerResult{}, nil
	})

	body, _ := json.Marshal(map[string][]string{"webhook_event_ids": {a.ID, b.ID}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook-events/bulk-retry", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}

	_, data, _ := decodeEnvelope(t, rec)
	var results map[string]bool
	json.Unmarshal(data, &results)
	if !results[a.ID] {
		t.Error("a should succeed")
	}
	if results[b.ID] {
		t.Error("b is ineligible and must be false")
	}
}

func TestWebhookEvents_StatisticsAndLogs(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	ev, _ := env.svc.Create(ctx, "waha", "message.received", nil, "")
	env.svc.Execute(ctx, ev.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhook-events/statistics", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics: status = %d", rec.Code)
	}
	_, data, _ := decodeEnvelope(t, rec)
	var stats storage.EventStats
	json.Unmarshal(data, &stats)
	if stats.Total != 1 || stats.Completed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/webhook-events/"+ev.ID+"/logs", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logs: status = %d", rec.Code)
	}
	_, data, _ = decodeEnvelope(t, rec)
	var logs []models.WebhookLog
	json.Unmarshal(data, &logs)
	if len(logs) < 2 {
		t.Errorf("expected receipt and completion logs, got %d", len(logs))
	}
}

func TestAdminAuth(t *testing.T) {
	env := setupEnv(t, func(cfg *config.Config) {
		cfg.Server.AdminAPIKey = "hk_admin"
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhook-events", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/webhook-events", nil)
	req.Header.Set("Authorization", "Bearer hk_admin")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", rec.Code)
	}

	// The inbound surface stays open; it has its own signature gate.
	req = httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewBufferString(wahaBody))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("webhook with admin auth on: status = %d, want 200", rec.Code)
	}
}

func TestChannels_CRUD(t *testing.T) {
	env := setupEnv(t, nil)

	body := `{"organization_id":"org1","gateway":"waha","phone_number":"456","session":"s1","reply_enabled":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/channels", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d (%s)", rec.Code, rec.Body.String())
	}

	_, data, _ := decodeEnvelope(t, rec)
	var ch models.ChannelConfig
	json.Unmarshal(data, &ch)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/channels/"+ch.ID, nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("get: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/channels/"+ch.ID, nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("delete: status = %d", rec.Code)
	}
}
