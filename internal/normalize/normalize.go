// Package normalize maps gateway-specific webhook payloads into the
// canonical inbound message shape. Matchers are tried in a fixed priority
// order; a payload that matches no known shape is reported as unrecognized,
// never as a partial message.
package normalize

import (
	"encoding/json"
	"errors"

	"github.com/shohag/hookwave/internal/models"
)

var ErrUnrecognized = errors.New("unrecognized webhook payload")

const (
	GatewayWAHA     = "waha"
	GatewayBusiness = "whatsapp-business"
)

// Matcher recognizes one gateway payload shape. Match returns false when the
// body does not carry an inbound message in that shape.
type Matcher interface {
	Gateway() string
	Match(body []byte) (*models.CanonicalMessage, bool)
}

type Normalizer struct {
	matchers []Matcher
}

// New returns a normalizer with the built-in matchers, WAHA first.
func New() *Normalizer {
	return &Normalizer{
		matchers: []Matcher{wahaMatcher{}, businessMatcher{}},
	}
}

// Register appends a matcher after the built-in ones.
func (n *Normalizer) Register(m Matcher) {
	n.matchers = append(n.matchers, m)
}

// Normalize is pure: it inspects the body, it never touches system state.
func (n *Normalizer) Normalize(body []byte) (*models.CanonicalMessage, error) {
	for _, m := range n.matchers {
		if msg, ok := m.Match(body); ok {
			msg.Gateway = m.Gateway()
			msg.RawData = json.RawMessage(body)
			if msg.CustomerPhone == "" {
				msg.CustomerPhone = msg.From
			}
			return msg, nil
		}
	}
	return nil, ErrUnrecognized
}
