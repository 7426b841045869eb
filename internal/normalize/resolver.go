package normalize

import (
	"context"
	"errors"

	"github.com/shohag/hookwave/internal/models"
	"github.com/shohag/hookwave/internal/storage"
)

// ErrOrgNotResolved means no channel config maps the destination number to a
// tenant. The message is valid but cannot be routed; callers surface this as
// a distinct condition rather than dropping the message.
var ErrOrgNotResolved = errors.New("no channel configured for destination number")

// Resolver attaches tenant identity to a canonical message by looking up the
// channel config for its destination phone number.
type Resolver struct {
	store storage.Storage
}

func NewResolver(store storage.Storage) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, msg *models.CanonicalMessage) (*models.ChannelConfig, error) {
	ch, err := r.store.GetChannelByPhone(ctx, msg.To)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrOrgNotResolved
	}

	msg.OrganizationID = ch.OrganizationID
	if msg.Session == "" {
		msg.Session = ch.Session
	}
	return ch, nil
}
