// Package notify implements the outbound notification fan-out named in §6:
// "an outbound adapter per channel kind (email, chat, etc.), each exposing
// send(recipient, subject, body)". Hub satisfies both the Amendment state
// machine's Broadcaster and the Provider/Key Manager's Notifier interfaces,
// so both components publish through the same set of configured channels
// without depending on a concrete channel implementation.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Channel is one outbound adapter — a chat webhook, a generic HTTP webhook,
// or any future channel kind. Implementations are expected to be
// self-disabling (a no-op Send) when unconfigured, not to return an error.
type Channel interface {
	Name() string
	Send(ctx context.Context, subject, body string) error
}

// Hub fans a notification out to every configured channel.
type Hub struct {
	channels []Channel
	logger   *slog.Logger
}

// NewHub creates a Hub over the given channels. A disabled channel is safe to
// pass; its Send does nothing and reports success. Nil channels are not
// skipped.
func NewHub(logger *slog.Logger, channels ...Channel) *Hub {
	return &Hub{channels: channels, logger: logger}
}

// Broadcast sends subject/body to every channel, prefixing subject with kind
// so a human reading a chat channel knows what fired it (CONSTITUTION_AMENDED,
// AMENDMENT_REJECTED, PROVIDER_OUTAGE, ...). A single channel's failure never
// blocks the others; Broadcast only returns an error when every channel
// failed, so a caller with zero or one working channel still gets signal.
func (h *Hub) Broadcast(ctx context.Context, kind, subject, body string) error {
	if len(h.channels) == 0 {
		return nil
	}

	tagged := subject
	if kind != "" {
		tagged = "[" + kind + "] " + subject
	}

	var errs []error
	failures := 0
	for _, ch := range h.channels {
		if err := ch.Send(ctx, tagged, body); err != nil {
			failures++
			errs = append(errs, err)
			h.logger.Warn("notification channel send failed", "channel", ch.Name(), "kind", kind, "error", err)
		}
	}

	if failures == len(h.channels) {
		return errors.Join(errs...)
	}
	return nil
}

// Notify implements pkg/provider.Notifier, broadcasting a provider outage
// alert under a fixed kind tag.
func (h *Hub) Notify(ctx context.Context, subject, body string) error {
	return h.Broadcast(ctx, "PROVIDER_OUTAGE", subject, body)
}
