package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/storage"
	"github.com/shohag/hookwave/internal/webhook"
)

type WebhookEventHandler struct {
	svc   *webhook.Service
	store storage.Storage
	log   zerolog.Logger
	debug bool
}

func NewWebhookEventHandler(svc *webhook.Service, store storage.Storage, log zerolog.Logger, debug bool) *WebhookEventHandler {
	return &WebhookEventHandler{svc: svc, store: store, log: log, debug: debug}
}

func (h *WebhookEventHandler) detail(err error) string {
	if h.debug && err != nil {
		return err.Error()
	}
	return ""
}

type createEventRequest struct {
	Gateway        string          `json:"gateway"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	OrganizationID string          `json:"organization_id"`
}

func (h *WebhookEventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.detail(err))
		return
	}

	ev, err := h.svc.Create(r.Context(), req.Gateway, req.EventType, req.Payload, req.OrganizationID)
	if err != nil {
		if errors.Is(err, webhook.ErrValidation) {
			writeError(w, http.StatusBadRequest, "gateway and event_type are required", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create webhook event", h.detail(err))
		return
	}

	writeEnvelope(w, http.StatusCreated, "webhook event created", ev)
}

func (h *WebhookEventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	f := storage.EventFilter{
		Gateway:        q.Get("gateway"),
		EventType:      q.Get("event_type"),
		Status:         models.EventStatus(q.Get("status")),
		OrganizationID: q.Get("organization_id"),
		Limit:          limit,
		Offset:         offset,
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339", "")
			return
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC3339", "")
			return
		}
		f.Until = t
	}

	events, err := h.store.ListWebhookEvents(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list webhook events", h.detail(err))
		return
	}
	if events == nil {
		events = []models.WebhookEvent{}
	}
	writeEnvelope(w, http.StatusOK, "webhook events retrieved", events)
}

func (h *WebhookEventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := h.store.GetWebhookEvent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get webhook event", h.detail(err))
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "webhook event not found", "")
		return
	}
	writeEnvelope(w, http.StatusOK, "webhook event retrieved", ev)
}

type updateEventRequest struct {
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	MaxRetries     *int            `json:"max_retries"`
	OrganizationID *string         `json:"organization_id"`
}

func (h *WebhookEventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := h.store.GetWebhookEvent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get webhook event", h.detail(err))
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "webhook event not found", "")
		return
	}

	var req updateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.detail(err))
		return
	}

	if req.EventType != "" {
		ev.EventType = req.EventType
	}
	if len(req.Payload) > 0 {
		ev.Payload = req.Payload
	}
	if req.MaxRetries != nil {
		if *req.MaxRetries < ev.RetryCount {
			writeError(w, http.StatusBadRequest, "max_retries cannot be below the current retry_count", "")
			return
		}
		ev.MaxRetries = *req.MaxRetries
	}
	if req.OrganizationID != nil {
		ev.OrganizationID = *req.OrganizationID
	}

	if err := h.store.UpdateWebhookEvent(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update webhook event", h.detail(err))
		return
	}
	writeEnvelope(w, http.StatusOK, "webhook event updated", ev)
}

func (h *WebhookEventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := h.store.GetWebhookEvent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get webhook event", h.detail(err))
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "webhook event not found", "")
		return
	}

	if err := h.store.DeleteWebhookEvent(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete webhook event", h.detail(err))
		return
	}
	writeEnvelope(w, http.StatusOK, "webhook event deleted", nil)
}

func (h *WebhookEventHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, result, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotFound):
			writeError(w, http.StatusNotFound, "webhook event not found", "")
		case errors.Is(err, webhook.ErrRetryNotEligible):
			writeError(w, http.StatusBadRequest, "webhook event is not retry-eligible", "")
		default:
			writeError(w, http.StatusInternalServerError, "failed to retry webhook event", h.detail(err))
		}
		return
	}

	writeEnvelope(w, http.StatusOK, "retry executed", map[string]interface{}{
		"event":  ev,
		"result": result,
	})
}

type bulkRetryRequest struct {
	WebhookEventIDs []string `json:"webhook_event_ids"`
}

func (h *WebhookEventHandler) BulkRetry(w http.ResponseWriter, r *http.Request) {
	var req bulkRetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.detail(err))
		return
	}
	if len(req.WebhookEventIDs) == 0 {
		writeError(w, http.StatusBadRequest, "webhook_event_ids is required", "")
		return
	}

	results := h.svc.BulkRetry(r.Context(), req.WebhookEventIDs)
	writeEnvelope(w, http.StatusOK, "bulk retry executed", results)
}

func (h *WebhookEventHandler) ReadyForRetry(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.svc.ReadyForRetry(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list retry-eligible events", h.detail(err))
		return
	}
	if events == nil {
		events = []models.WebhookEvent{}
	}
	writeEnvelope(w, http.StatusOK, "retry-eligible events retrieved", events)
}

func (h *WebhookEventHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.StatsFilter{
		Gateway:        q.Get("gateway"),
		OrganizationID: q.Get("organization_id"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339", "")
			return
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC3339", "")
			return
		}
		f.Until = t
	}

	stats, err := h.svc.Statistics(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get statistics", h.detail(err))
		return
	}
	writeEnvelope(w, http.StatusOK, "statistics retrieved", stats)
}

func (h *WebhookEventHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := h.store.GetWebhookEvent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get webhook event", h.detail(err))
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "webhook event not found", "")
		return
	}

	logs, err := h.store.ListWebhookLogs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get webhook logs", h.detail(err))
		return
	}
	if logs == nil {
		logs = []models.WebhookLog{}
	}
	writeEnvelope(w, http.StatusOK, "webhook logs retrieved", logs)
}
