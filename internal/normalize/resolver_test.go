package normalize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/storage"
)

func setupStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func TestResolver_Resolve(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.CreateChannel(ctx, &models.ChannelConfig{
		ID:             models.NewID("ch"),
		OrganizationID: "org1",
		Gateway:        GatewayWAHA,
		PhoneNumber:    "456",
		Session:        "s1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}

	r := NewResolver(store)

	msg := &models.CanonicalMessage{To: "456"}
	ch, err := r.Resolve(ctx, msg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ch.OrganizationID != "org1" {
		t.Errorf("channel org = %s, want org1", ch.OrganizationID)
	}
	if msg.OrganizationID != "org1" {
		t.Errorf("message org = %s, want org1", msg.OrganizationID)
	}
	if msg.Session != "s1" {
		t.Errorf("message session = %s, want s1", msg.Session)
	}
}

func TestResolver_NoMatch(t *testing.T) {
	store := setupStore(t)
	r := NewResolver(store)

	msg := &models.CanonicalMessage{To: "999"}
	_, err := r.Resolve(context.Background(), msg)
	if !errors.Is(err, ErrOrgNotResolved) {
		t.Errorf("Resolve() error = %v, want ErrOrgNotResolved", err)
	}
}

func TestResolver_KeepsExplicitSession(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	store.CreateChannel(ctx, &models.ChannelConfig{
		ID:             models.NewID("ch"),
		OrganizationID: "org1",
		Gateway:        GatewayWAHA,
		PhoneNumber:    "456",
		Session:        "fallback",
		CreatedAt:      now,
		UpdatedAt:      now,
	})

	msg := &models.CanonicalMessage{To: "456", Session: "from-payload"}
	if _, err := NewResolver(store).Resolve(ctx, msg); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if msg.Session != "from-payload" {
		t.Errorf("session = %s, want from-payload", msg.Session)
	}
}
