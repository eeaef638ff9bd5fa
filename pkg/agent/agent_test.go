package agent

import (
	"testing"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/identity"
)

func mustParseAgentID() uuid.UUID {
	return uuid.New()
}

func TestAgent_IsCritic(t *testing.T) {
	tests := []struct {
		tier identity.Tier
		want bool
	}{
		{identity.TierHead, false},
		{identity.TierTask, false},
		{identity.TierCriticCode, true},
		{identity.TierCriticOutput, true},
		{identity.TierCriticPlan, true},
	}
	for _, tt := range tests {
		a := Agent{Tier: tt.tier}
		if got := a.IsCritic(); got != tt.want {
			t.Errorf("Agent{Tier: %v}.IsCritic() = %v, want %v", tt.tier, got, tt.want)
		}
	}
}

func TestAgent_CanReceiveTasks(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusActive, true},
		{StatusWorking, true},
		{StatusTerminated, false},
		{StatusSuspended, false},
	}
	for _, tt := range tests {
		a := Agent{Status: tt.status}
		if got := a.CanReceiveTasks(); got != tt.want {
			t.Errorf("Agent{Status: %v}.CanReceiveTasks() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestAgent_View_RoundTrips(t *testing.T) {
	a := Agent{
		TierID:      "30001",
		Tier:        identity.TierTask,
		GrantedCaps: []identity.Capability{identity.CapSpawnTaskAgent},
		RevokedCaps: []identity.Capability{identity.CapUseTools},
	}

	view := a.View()
	if view.TierID != a.TierID || view.Tier != a.Tier {
		t.Fatalf("View() did not preserve tier id/tier")
	}

	effective := identity.EffectiveCapabilities(view)
	if _, ok := effective[identity.CapSpawnTaskAgent]; !ok {
		t.Error("expected granted capability present in effective set")
	}
	if _, ok := effective[identity.CapUseTools]; ok {
		t.Error("expected revoked capability absent from effective set")
	}
}

func TestAgent_NearingTokenBudget(t *testing.T) {
	tests := []struct {
		name   string
		count  int64
		budget int64
		want   bool
	}{
		{"zero budget never triggers", 1_000_000, 0, false},
		{"below threshold", 100, 1000, false},
		{"at threshold", 800, 1000, true},
		{"above threshold", 999, 1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Agent{TokenCount: tt.count, TokenBudget: tt.budget}
			if got := a.NearingTokenBudget(0.8); got != tt.want {
				t.Errorf("NearingTokenBudget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAgent_ToResponse(t *testing.T) {
	parent := mustParseAgentID()
	a := Agent{
		TierID:    "30001",
		Tier:      identity.TierTask,
		ParentRef: &parent,
	}

	resp := a.ToResponse()
	if resp.ParentRef == nil || *resp.ParentRef != parent.String() {
		t.Errorf("expected ParentRef %q in response, got %v", parent, resp.ParentRef)
	}
}
