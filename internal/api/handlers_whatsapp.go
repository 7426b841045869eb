package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/normalize"
	"github.com/shohag/hookwave/internal/signing"
	"github.com/shohag/hookwave/internal/webhook"
)

const maxWebhookBody = 256 * 1024 // 256KB

type WhatsAppHandler struct {
	svc         *webhook.Service
	normalizer  *normalize.Normalizer
	resolver    *normalize.Resolver
	secret      string
	verifyToken string
	log         zerolog.Logger
	debug       bool
}

func NewWhatsAppHandler(svc *webhook.Service, normalizer *normalize.Normalizer, resolver *normalize.Resolver, secret, verifyToken string, log zerolog.Logger, debug bool) *WhatsAppHandler {
	return &WhatsAppHandler{
		svc:         svc,
		normalizer:  normalizer,
		resolver:    resolver,
		secret:      secret,
		verifyToken: verifyToken,
		log:         log,
		debug:       debug,
	}
}

// Verify answers the hub.challenge handshake WhatsApp Business performs when
// a webhook URL is registered. An unconfigured verify token accepts any
// handshake, consistent with the signature gate's open default.
func (h *WhatsAppHandler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || (h.verifyToken != "" && token != h.verifyToken) {
		h.log.Warn().Str("mode", mode).Msg("webhook verification rejected")
		writeError(w, http.StatusForbidden, "verification failed", "")
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// Receive ingests one inbound message webhook. Order matters: log receipt,
// signature gate, normalize, record + process, envelope. Every failure is
// converted to a structured JSON error here; nothing escapes unhandled.
func (h *WhatsAppHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", h.detail(err))
		return
	}

	h.log.Info().
		Int("bytes", len(body)).
		Str("remote", r.RemoteAddr).
		Msg("webhook received")

	if !signing.VerifyInbound(h.secret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "invalid webhook signature", "")
		return
	}

	msg, err := h.normalizer.Normalize(body)
	if err != nil {
		if errors.Is(err, normalize.ErrUnrecognized) {
			writeError(w, http.StatusBadRequest, "unrecognized webhook payload", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to normalize payload", h.detail(err))
		return
	}

	// Resolve the tenant before recording, so the event row carries its
	// organization_id even when the processing attempt later fails. An
	// unmapped destination number is recorded unscoped, not rejected.
	if _, err := h.resolver.Resolve(r.Context(), msg); err != nil && !errors.Is(err, normalize.ErrOrgNotResolved) {
		writeError(w, http.StatusInternalServerError, "failed to resolve channel", h.detail(err))
		return
	}

	ev, err := h.svc.Create(r.Context(), msg.Gateway, "message.received", body, msg.OrganizationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record webhook event", h.detail(err))
		return
	}

	ev, result, err := h.svc.Execute(r.Context(), ev.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process webhook event", h.detail(err))
		return
	}

	if ev.Status != models.EventCompleted {
		// Processing failure lives on the event, not in the HTTP status;
		// the gateway should not re-deliver what we will retry ourselves.
		writeEnvelope(w, http.StatusAccepted, "webhook accepted, processing deferred", map[string]interface{}{
			"event_id": ev.ID,
			"status":   ev.Status,
		})
		return
	}

	data := map[string]interface{}{
		"event_id":        ev.ID,
		"status":          ev.Status,
		"auto_reply_sent": false,
	}
	if result != nil {
		data["auto_reply_sent"] = result.AutoReplySent
		if result.Session != "" {
			data["session"] = result.Session
		}
	}
	writeEnvelope(w, http.StatusOK, "webhook processed", data)
}

func (h *WhatsAppHandler) detail(err error) string {
	if h.debug && err != nil {
		return err.Error()
	}
	return ""
}
