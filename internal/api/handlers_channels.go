package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/storage"
)

type ChannelHandler struct {
	store storage.Storage
	log   zerolog.Logger
	debug bool
}

func NewChannelHandler(store storage.Storage, log zerolog.Logger, debug bool) *ChannelHandler {
	return &ChannelHandler{store: store, log: log, debug: debug}
}

func (h *ChannelHandler) detail(err error) string {
	if h.debug && err != nil {
		return err.Error()
	}
	return ""
}

type createChannelRequest struct {
	OrganizationID string `json:"organization_id"`
	Gateway        string `json:"gateway"`
	PhoneNumber    string `json:"phone_number"`
	Session        string `json:"session"`
	ReplyEnabled   bool   `json:"reply_enabled"`
}

func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.detail(err))
		return
	}
	if req.OrganizationID == "" || req.Gateway == "" || req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "organization_id, gateway and phone_number are required", "")
		return
	}

	now := time.Now().UTC()
	ch := &models.ChannelConfig{
		ID:             models.NewID("ch"),
		OrganizationID: req.OrganizationID,
		Gateway:        req.Gateway,
		PhoneNumber:    req.PhoneNumber,
		Session:        req.Session,
		ReplyEnabled:   req.ReplyEnabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.CreateChannel(r.Context(), ch); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create channel", h.detail(err))
		return
	}
	writeEnvelope(w, http.StatusCreated, "channel created", ch)
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	channels, err := h.store.ListChannels(r.Context(), r.URL.Query().Get("organization_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list channels", h.detail(err))
		return
	}
	if channels == nil {
		channels = []models.ChannelConfig{}
	}
	writeEnvelope(w, http.StatusOK, "channels retrieved", channels)
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ch, err := h.store.GetChannel(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get channel", h.detail(err))
		return
	}
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found", "")
		return
	}
	writeEnvelope(w, http.StatusOK, "channel retrieved", ch)
}

func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ch, err := h.store.GetChannel(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get channel", h.detail(err))
		return
	}
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found", "")
		return
	}

	if err := h.store.DeleteChannel(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete channel", h.detail(err))
		return
	}
	writeEnvelope(w, http.StatusOK, "channel deleted", nil)
}
