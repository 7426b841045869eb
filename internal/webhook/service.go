// Package webhook owns the webhook event state machine from receipt to
// terminal resolution.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/storage"
)

var (
	ErrValidation       = errors.New("gateway and event_type are required")
	ErrNotFound         = errors.New("webhook event not found")
	ErrRetryNotEligible = errors.New("webhook event is not retry-eligible")
)

// HandlerResult carries what a processing attempt produced, for the caller's
// response envelope.
type HandlerResult struct {
	Session       string `json:"session,omitempty"`
	AutoReplySent bool   `json:"auto_reply_sent"`
	Detail        string `json:"detail,omitempty"`
}

// Handler processes one webhook event. A returned error is recorded onto the
// event as a failed attempt; it is never surfaced to the HTTP caller.
type Handler func(ctx context.Context, ev *models.WebhookEvent) (*HandlerResult, error)

type Service struct {
	store       storage.Storage
	log         zerolog.Logger
	maxRetries  int
	bulkWorkers int

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewService(store storage.Storage, log zerolog.Logger, maxRetries, bulkWorkers int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if bulkWorkers <= 0 {
		bulkWorkers = 4
	}
	return &Service{
		store:       store,
		log:         log,
		maxRetries:  maxRetries,
		bulkWorkers: bulkWorkers,
		handlers:    make(map[string]Handler),
	}
}

// Register binds a handler to gateway/eventType. Use "*" as eventType to
// catch every event of a gateway.
func (s *Service) Register(gateway, eventType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[gateway+"/"+eventType] = h
}

func (s *Service) handler(gateway, eventType string) Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.handlers[gateway+"/"+eventType]; ok {
		return h
	}
	return s.handlers[gateway+"/*"]
}

// Create records a new webhook occurrence in pending state.
func (s *Service) Create(ctx context.Context, gateway, eventType string, payload json.RawMessage, organizationID string) (*models.WebhookEvent, error) {
	if gateway == "" || eventType == "" {
		return nil, ErrValidation
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	now := time.Now().UTC()
	ev := &models.WebhookEvent{
		ID:             models.NewID("evt"),
		Gateway:        gateway,
		EventType:      eventType,
		Payload:        payload,
		Status:         models.EventPending,
		MaxRetries:     s.maxRetries,
		OrganizationID: organizationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateWebhookEvent(ctx, ev); err != nil {
		return nil, err
	}

	s.appendLog(ctx, ev.ID, "info", "webhook received from "+gateway)
	s.log.Info().
		Str("event_id", ev.ID).
		Str("gateway", gateway).
		Str("event_type", eventType).
		Msg("webhook event created")
	return ev, nil
}

// Execute runs the first processing attempt for a freshly created event.
func (s *Service) Execute(ctx context.Context, id string) (*models.WebhookEvent, *HandlerResult, error) {
	ev, err := s.store.GetWebhookEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if ev == nil {
		return nil, nil, ErrNotFound
	}

	claimed, err := s.store.ClaimWebhookEvent(ctx, id, models.EventPending, false)
	if err != nil {
		return nil, nil, err
	}
	if !claimed {
		return ev, nil, ErrRetryNotEligible
	}
	ev.Status = models.EventProcessing

	return s.attempt(ctx, ev)
}

// Retry re-runs processing for a failed event. Eligibility is checked twice:
// once on the loaded row and again inside the conditional claim, so two
// concurrent retries of the same id can never both increment retry_count.
func (s *Service) Retry(ctx context.Context, id string) (*models.WebhookEvent, *HandlerResult, error) {
	ev, err := s.store.GetWebhookEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if ev == nil {
		return nil, nil, ErrNotFound
	}
	if !ev.CanRetry() {
		return ev, nil, ErrRetryNotEligible
	}

	claimed, err := s.store.ClaimWebhookEvent(ctx, id, models.EventFailed, true)
	if err != nil {
		return nil, nil, err
	}
	if !claimed {
		return ev, nil, ErrRetryNotEligible
	}
	ev.Status = models.EventProcessing
	ev.RetryCount++

	s.appendLog(ctx, ev.ID, "info", "retry attempt started")
	s.log.Info().
		Str("event_id", ev.ID).
		Int("retry_count", ev.RetryCount).
		Msg("retrying webhook event")

	return s.attempt(ctx, ev)
}

// attempt dispatches to the registered handler and records the outcome.
// Handler errors become event state, not returned errors.
func (s *Service) attempt(ctx context.Context, ev *models.WebhookEvent) (*models.WebhookEvent, *HandlerResult, error) {
	h := s.handler(ev.Gateway, ev.EventType)

	var result *HandlerResult
	var handlerErr error
	if h == nil {
		handlerErr = errors.New("no handler registered for " + ev.Gateway + "/" + ev.EventType)
	} else {
		result, handlerErr = h(ctx, ev)
	}

	if handlerErr != nil {
		if err := s.store.MarkWebhookEventFailed(ctx, ev.ID, handlerErr.Error()); err != nil {
			return nil, nil, err
		}
		s.appendLog(ctx, ev.ID, "error", "processing failed: "+handlerErr.Error())
		s.log.Warn().
			Str("event_id", ev.ID).
			Str("error", handlerErr.Error()).
			Msg("webhook event processing failed")
	} else {
		if err := s.store.MarkWebhookEventCompleted(ctx, ev.ID, time.Now().UTC()); err != nil {
			return nil, nil, err
		}
		s.appendLog(ctx, ev.ID, "info", "processing completed")
	}

	updated, err := s.store.GetWebhookEvent(ctx, ev.ID)
	if err != nil {
		return nil, nil, err
	}
	if updated == nil {
		return nil, nil, ErrNotFound
	}
	return updated, result, nil
}

// BulkRetry applies Retry to each id independently with bounded fan-out.
// Partial failure is expected: the returned map reports per-id success and
// the batch never aborts.
func (s *Service) BulkRetry(ctx context.Context, ids []string) map[string]bool {
	results := make(map[string]bool, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.bulkWorkers)

	for _, id := range ids {
		id := id
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ev, _, err := s.Retry(ctx, id)
			ok := err == nil && ev != nil && ev.Status == models.EventCompleted

			mu.Lock()
			results[id] = ok
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// Statistics is side-effect free.
func (s *Service) Statistics(ctx context.Context, f storage.StatsFilter) (*storage.EventStats, error) {
	return s.store.GetEventStats(ctx, f)
}

// ReadyForRetry re-queries eligibility each call; state is mutable, so two
// calls may return different sets.
func (s *Service) ReadyForRetry(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	return s.store.ListRetryEligible(ctx, limit)
}

func (s *Service) appendLog(ctx context.Context, eventID, level, message string) {
	l := &models.WebhookLog{
		ID:        models.NewID("log"),
		EventID:   eventID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendWebhookLog(ctx, l); err != nil {
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to append webhook log")
	}
}
