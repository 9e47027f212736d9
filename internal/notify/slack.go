package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrDisabled is returned when the relay is called without being configured.
var ErrDisabled = errors.New("notify: slack integration is not enabled")

// Slack posts messages to an incoming webhook.
type Slack struct {
	webhookURL     string
	defaultChannel string
	client         *http.Client
}

// NewSlack returns a relay, or nil when no webhook is configured so callers
// can treat the integration as disabled.
func NewSlack(webhookURL, defaultChannel string) *Slack {
	if webhookURL == "" {
		return nil
	}
	return &Slack{
		webhookURL:     webhookURL,
		defaultChannel: defaultChannel,
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether the relay can deliver messages.
func (s *Slack) Enabled() bool { return s != nil }

type slackPayload struct {
	Channel string          `json:"channel,omitempty"`
	Text    string          `json:"text"`
	Blocks  json.RawMessage `json:"blocks,omitempty"`
}

// Notify delivers a message. channel falls back to the configured default.
func (s *Slack) Notify(ctx context.Context, channel, text string, blocks json.RawMessage) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if channel == "" {
		channel = s.defaultChannel
	}
	body, err := json.Marshal(slackPayload{Channel: channel, Text: text, Blocks: blocks})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: slack delivery failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
