// Package slackchannel adapts Slack as a notify.Channel, the "chat" channel
// kind named in §6, grounded on the teacher's pkg/slack Notifier.
package slackchannel

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"
)

// Channel posts notifications to a single Slack channel via a bot token.
// A zero-value botToken makes it a safe no-op, matching the teacher's
// "disabled when unset" convention for optional integrations.
type Channel struct {
	client  *goslack.Client
	channel string
}

// New creates a Slack Channel. If botToken is empty the channel is disabled
// and Send always succeeds without making a network call.
func New(botToken, channel string) *Channel {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Channel{client: client, channel: channel}
}

// Name identifies this channel kind in logs.
func (c *Channel) Name() string { return "slack" }

// Send posts subject/body as a single Slack message.
func (c *Channel) Send(ctx context.Context, subject, body string) error {
	if c.client == nil || c.channel == "" {
		return nil
	}

	text := subject
	if body != "" {
		text = fmt.Sprintf("%s\n%s", subject, body)
	}

	_, _, err := c.client.PostMessageContext(ctx, c.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}
