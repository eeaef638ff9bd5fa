package wschannel

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestChannel_Send_NoClients_IsNoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(nil, logger)

	if err := c.Send(context.Background(), "subject", "body"); err != nil {
		t.Fatalf("expected no error with zero connected clients, got: %v", err)
	}
}

func TestChannel_Name(t *testing.T) {
	c := New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if c.Name() != "websocket" {
		t.Errorf("expected name websocket, got %s", c.Name())
	}
}
