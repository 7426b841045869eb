// Package gateway holds outbound clients for the messaging gateways we
// dispatch replies through.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/shohag/hookwave/internal/config"
	"github.com/shohag/hookwave/internal/signing"
)

// WAHAClient sends text messages through a WAHA instance.
type WAHAClient struct {
	httpClient     *resty.Client
	defaultSession string
	signingSecret  string
}

func NewWAHA(cfg config.OutboundConfig) *WAHAClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		restyClient.SetHeader("X-Api-Key", cfg.APIKey)
	}

	return &WAHAClient{
		httpClient:     restyClient,
		defaultSession: cfg.Session,
		signingSecret:  cfg.SigningSecret,
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *WAHAClient) SendText(ctx context.Context, session, to, text string) error {
	if session == "" {
		session = c.defaultSession
	}

	payload, err := json.Marshal(map[string]any{
		"session": session,
		"chatId":  to,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("encode send payload: %w", err)
	}

	req := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload)

	if c.signingSecret != "" {
		sig, ts := signing.Sign(c.signingSecret, payload)
		req.SetHeader("X-Hookwave-Signature", sig)
		req.SetHeader("X-Hookwave-Timestamp", strconv.FormatInt(ts, 10))
	}

	apiErr := new(apiError)
	resp, err := req.SetError(apiErr).Post("/api/sendText")
	if err != nil {
		return fmt.Errorf("send text via waha: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		detail := apiErr.Message
		if detail == "" {
			detail = apiErr.Error
		}
		return fmt.Errorf("waha api error: status=%d message=%s", resp.StatusCode(), detail)
	}
	return nil
}
