package models

import (
	"encoding/json"
	"time"
)

type EventStatus string

const (
	EventPending    EventStatus = "pending"
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
	EventDead       EventStatus = "dead"
)

// WebhookEvent records one inbound webhook occurrence and its processing
// lifecycle: pending -> processing -> completed|failed, failed -> processing
// on retry until retry_count reaches max_retries, then failed -> dead.
type WebhookEvent struct {
	ID             string          `json:"id"`
	Gateway        string          `json:"gateway"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Status         EventStatus     `json:"status"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	OrganizationID string          `json:"organization_id,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	CanRetryNow    bool            `json:"can_retry"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CanRetry reports whether another processing attempt is permitted.
// Derived, never stored.
func (e *WebhookEvent) CanRetry() bool {
	return e.Status == EventFailed && e.RetryCount < e.MaxRetries
}

type WebhookLog struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
