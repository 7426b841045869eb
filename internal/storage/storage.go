package storage

import (
	"context"
	"time"

	"github.com/shohag/hookwave/internal/models"
)

// EventFilter narrows webhook event listings. Zero values mean "no filter".
type EventFilter struct {
	Gateway        string
	EventType      string
	Status         models.EventStatus
	OrganizationID string
	Since          time.Time
	Until          time.Time
	Limit          int
	Offset         int
}

// StatsFilter narrows the statistics window.
type StatsFilter struct {
	Gateway        string
	OrganizationID string
	Since          time.Time
	Until          time.Time
}

type EventStats struct {
	Total         int64            `json:"total"`
	Pending       int64            `json:"pending"`
	Processing    int64            `json:"processing"`
	Completed     int64            `json:"completed"`
	Failed        int64            `json:"failed"`
	Dead          int64            `json:"dead"`
	RetryEligible int64            `json:"retry_eligible"`
	SuccessRate   float64          `json:"success_rate"`
	ByGateway     map[string]int64 `json:"by_gateway"`
	ByEventType   map[string]int64 `json:"by_event_type"`
}

type Storage interface {
	// Webhook events
	CreateWebhookEvent(ctx context.Context, ev *models.WebhookEvent) error
	GetWebhookEvent(ctx context.Context, id string) (*models.WebhookEvent, error)
	ListWebhookEvents(ctx context.Context, f EventFilter) ([]models.WebhookEvent, error)
	UpdateWebhookEvent(ctx context.Context, ev *models.WebhookEvent) error
	DeleteWebhookEvent(ctx context.Context, id string) error

	// Lifecycle transitions. ClaimWebhookEvent moves an event into
	// processing only when its status still equals `from`; with
	// incrementRetry it also bumps retry_count and enforces the
	// retry_count < max_retries ceiling. Returns false when the row was
	// not in the expected state (lost race or ineligible).
	ClaimWebhookEvent(ctx context.Context, id string, from models.EventStatus, incrementRetry bool) (bool, error)
	MarkWebhookEventCompleted(ctx context.Context, id string, at time.Time) error
	MarkWebhookEventFailed(ctx context.Context, id, lastError string) error

	ListRetryEligible(ctx context.Context, limit int) ([]models.WebhookEvent, error)
	GetEventStats(ctx context.Context, f StatsFilter) (*EventStats, error)

	// Channel configs
	CreateChannel(ctx context.Context, ch *models.ChannelConfig) error
	GetChannel(ctx context.Context, id string) (*models.ChannelConfig, error)
	GetChannelByPhone(ctx context.Context, phone string) (*models.ChannelConfig, error)
	ListChannels(ctx context.Context, organizationID string) ([]models.ChannelConfig, error)
	DeleteChannel(ctx context.Context, id string) error

	// Processing logs
	AppendWebhookLog(ctx context.Context, l *models.WebhookLog) error
	ListWebhookLogs(ctx context.Context, eventID string) ([]models.WebhookLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
