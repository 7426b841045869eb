// Package processor runs the downstream pipeline for normalized inbound
// messages: tenant resolution and optional automated replies.
package processor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/normalize"
	"github.com/shohag/hookwave/internal/webhook"
)

// Sender dispatches an outbound text message through a gateway.
type Sender interface {
	SendText(ctx context.Context, session, to, text string) error
}

type Processor struct {
	normalizer *normalize.Normalizer
	resolver   *normalize.Resolver
	sender     Sender
	replyText  string
	log        zerolog.Logger
}

// New builds a processor. sender may be nil, which disables automated
// replies entirely.
func New(normalizer *normalize.Normalizer, resolver *normalize.Resolver, sender Sender, replyText string, log zerolog.Logger) *Processor {
	return &Processor{
		normalizer: normalizer,
		resolver:   resolver,
		sender:     sender,
		replyText:  replyText,
		log:        log,
	}
}

// Process resolves the message's tenant and, when the channel asks for it,
// dispatches an automated reply. Reply dispatch failures are logged but do
// not fail the processing attempt; the message was already routed.
func (p *Processor) Process(ctx context.Context, msg *models.CanonicalMessage) (*webhook.HandlerResult, error) {
	ch, err := p.resolver.Resolve(ctx, msg)
	if err != nil {
		return nil, err
	}

	result := &webhook.HandlerResult{
		Session: msg.Session,
		Detail:  "routed to organization " + msg.OrganizationID,
	}

	p.log.Info().
		Str("message_id", msg.MessageID).
		Str("gateway", msg.Gateway).
		Str("organization_id", msg.OrganizationID).
		Str("message_type", msg.MessageType).
		Msg("inbound message routed")

	if ch.ReplyEnabled && p.sender != nil && msg.CustomerPhone != "" {
		if err := p.sender.SendText(ctx, msg.Session, msg.CustomerPhone, p.replyText); err != nil {
			p.log.Warn().
				Err(err).
				Str("message_id", msg.MessageID).
				Msg("auto reply dispatch failed")
		} else {
			result.AutoReplySent = true
		}
	}

	return result, nil
}

// HandleEvent adapts Process to the lifecycle service handler signature.
// It re-normalizes the stored payload, so a retry runs the full pipeline
// against current channel configuration.
func (p *Processor) HandleEvent(ctx context.Context, ev *models.WebhookEvent) (*webhook.HandlerResult, error) {
	msg, err := p.normalizer.Normalize(ev.Payload)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, msg)
}
