// Package webhookchannel adapts a generic JSON HTTP webhook as a
// notify.Channel — the "etc." of §6's "email, chat, etc." channel list,
// covering PagerDuty/Opsgenie/custom receivers without a per-vendor SDK.
package webhookchannel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const requestTimeout = 5 * time.Second

// Channel posts a JSON payload to a configured URL. An empty url makes it a
// safe no-op.
type Channel struct {
	url    string
	client *http.Client
}

// New creates a webhook Channel targeting url. If url is empty the channel
// is disabled.
func New(url string) *Channel {
	return &Channel{url: url, client: &http.Client{Timeout: requestTimeout}}
}

// Name identifies this channel kind in logs.
func (c *Channel) Name() string { return "webhook" }

type payload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send posts subject/body as a JSON object to the configured URL.
func (c *Channel) Send(ctx context.Context, subject, body string) error {
	if c.url == "" {
		return nil
	}

	buf, err := json.Marshal(payload{Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
