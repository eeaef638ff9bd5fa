package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeChannel struct {
	name string
	err  error
	sent []string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, subject, body string) error {
	f.sent = append(f.sent, subject+"|"+body)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHub_Broadcast_TagsSubjectWithKind(t *testing.T) {
	ch := &fakeChannel{name: "fake"}
	h := NewHub(testLogger(), ch)

	if err := h.Broadcast(context.Background(), "CONSTITUTION_AMENDED", "v2 ratified", "details"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "[CONSTITUTION_AMENDED] v2 ratified|details" {
		t.Errorf("unexpected sent payload: %v", ch.sent)
	}
}

func TestHub_Broadcast_OneChannelFailing_StillSucceeds(t *testing.T) {
	ok := &fakeChannel{name: "ok"}
	bad := &fakeChannel{name: "bad", err: errors.New("boom")}
	h := NewHub(testLogger(), ok, bad)

	if err := h.Broadcast(context.Background(), "", "subject", "body"); err != nil {
		t.Fatalf("expected partial success to return nil, got: %v", err)
	}
}

func TestHub_Broadcast_AllChannelsFailing_ReturnsError(t *testing.T) {
	bad1 := &fakeChannel{name: "bad1", err: errors.New("one")}
	bad2 := &fakeChannel{name: "bad2", err: errors.New("two")}
	h := NewHub(testLogger(), bad1, bad2)

	if err := h.Broadcast(context.Background(), "", "subject", "body"); err == nil {
		t.Fatal("expected an error when every channel fails")
	}
}

func TestHub_Broadcast_NoChannels_IsNoop(t *testing.T) {
	h := NewHub(testLogger())
	if err := h.Broadcast(context.Background(), "KIND", "subject", "body"); err != nil {
		t.Fatalf("expected no-op with zero channels, got: %v", err)
	}
}

func TestHub_Notify_UsesProviderOutageKind(t *testing.T) {
	ch := &fakeChannel{name: "fake"}
	h := NewHub(testLogger(), ch)

	if err := h.Notify(context.Background(), "key exhausted", "all openai keys cooling down"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "[PROVIDER_OUTAGE] key exhausted|all openai keys cooling down" {
		t.Errorf("unexpected sent payload: %v", ch.sent)
	}
}
