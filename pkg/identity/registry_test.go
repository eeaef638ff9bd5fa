package identity

import (
	"context"
	"log/slog"
	"testing"

	"github.com/neurotech-brt/agentium/internal/audit"
)

func TestRegistry_AllocateTierID_SkipsUsed(t *testing.T) {
	r := NewRegistry(nil, audit.NewWriter(nil, slog.Default()))

	used := map[string]bool{}
	for i := 0; i < 9999; i++ {
		used[fmtID('3', i)] = true
	}

	id, err := r.AllocateTierID(context.Background(), TierTask, func(_ context.Context, tierID string) (bool, error) {
		return used[tierID], nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id[0] != '3' {
		t.Fatalf("expected prefix '3', got id %q", id)
	}
}

func TestRegistry_AllocateTierID_FallsBackAcrossPrefixes(t *testing.T) {
	r := NewRegistry(nil, audit.NewWriter(nil, slog.Default()))

	used := map[string]bool{}
	for _, p := range []byte{'3', '4', '5'} {
		for i := 0; i < 10000; i++ {
			used[fmtID(p, i)] = true
		}
	}

	id, err := r.AllocateTierID(context.Background(), TierTask, func(_ context.Context, tierID string) (bool, error) {
		return used[tierID], nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id[0] != '6' {
		t.Fatalf("expected fallback prefix '6', got id %q", id)
	}
}

func TestRegistry_AllocateTierID_PoolExhausted(t *testing.T) {
	r := NewRegistry(nil, audit.NewWriter(nil, slog.Default()))

	_, err := r.AllocateTierID(context.Background(), TierCriticCode, func(context.Context, string) (bool, error) {
		return true, nil
	})
	if err == nil {
		t.Fatal("expected PoolExhausted error")
	}
}

func TestRegistry_GrantRevoke(t *testing.T) {
	r := NewRegistry(nil, audit.NewWriter(nil, slog.Default()))

	head := AgentView{TierID: "00001", Tier: TierHead}
	target := AgentView{TierID: "30001", Tier: TierTask}

	caps, err := r.Grant(context.Background(), target, head, CapSpawnTaskAgent, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(caps.Granted) != 1 || caps.Granted[0] != CapSpawnTaskAgent {
		t.Fatalf("expected CapSpawnTaskAgent granted, got %v", caps.Granted)
	}

	target.Caps = caps
	caps, err = r.Revoke(context.Background(), target, head, CapSpawnTaskAgent, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(caps.Granted) != 0 {
		t.Fatalf("expected granted list emptied after revoke, got %v", caps.Granted)
	}
	if len(caps.Revoked) != 1 || caps.Revoked[0] != CapSpawnTaskAgent {
		t.Fatalf("expected CapSpawnTaskAgent revoked, got %v", caps.Revoked)
	}
}

func TestRegistry_Grant_RequiresGrantCapability(t *testing.T) {
	r := NewRegistry(nil, audit.NewWriter(nil, slog.Default()))

	task := AgentView{TierID: "30001", Tier: TierTask}
	target := AgentView{TierID: "30002", Tier: TierTask}

	_, err := r.Grant(context.Background(), target, task, CapSpawnTaskAgent, "test")
	if err == nil {
		t.Fatal("expected permission denied when grantor lacks GRANT_CAPABILITY")
	}
}

func fmtID(prefix byte, n int) string {
	s := make([]byte, 5)
	s[0] = prefix
	for i := 4; i >= 1; i-- {
		s[i] = byte('0' + n%10)
		n /= 10
	}
	return string(s)
}
