package identity

import (
	"testing"

	"github.com/neurotech-brt/agentium/pkg/agierr"
)

func TestBaseCapabilities_MonotonicDownward(t *testing.T) {
	head := baseCapabilitiesForTier(TierHead)
	council := baseCapabilitiesForTier(TierCouncil)
	lead := baseCapabilitiesForTier(TierLead)
	task := baseCapabilitiesForTier(TierTask)

	for c := range task {
		if _, ok := lead[c]; !ok {
			t.Errorf("LEAD missing TASK capability %q", c)
		}
	}
	// COUNCIL inherits only part of LEAD and TASK — it withholds
	// ESCALATE_BLOCKER and REQUEST_CLARIFICATION, which presume a Lead above
	// the holder to escalate to or request clarification from.
	for c := range lead {
		if c == CapEscalateBlocker || c == CapRequestClarification {
			continue
		}
		if _, ok := council[c]; !ok {
			t.Errorf("COUNCIL missing LEAD capability %q", c)
		}
	}
	for c := range council {
		if _, ok := head[c]; !ok {
			t.Errorf("HEAD missing COUNCIL capability %q", c)
		}
	}
}

func TestBaseCapabilities_CriticOrthogonal(t *testing.T) {
	tiers := []Tier{TierCriticCode, TierCriticOutput, TierCriticPlan}
	task := baseCapabilitiesForTier(TierTask)
	want := map[Capability]struct{}{CapVeto: {}, CapReportStatus: {}, CapQueryKnowledge: {}}

	for _, tier := range tiers {
		t.Run(string(tier), func(t *testing.T) {
			critic := baseCapabilitiesForTier(tier)

			if len(critic) != len(want) {
				t.Fatalf("%s capability set = %v, want %v", tier, critic, want)
			}
			for c := range want {
				if _, ok := critic[c]; !ok {
					t.Errorf("%s missing capability %q", tier, c)
				}
			}
			if _, ok := critic[CapVoteOnAmendment]; ok {
				t.Errorf("%s must never hold VOTE_ON_AMENDMENT", tier)
			}

			shared := 0
			for c := range critic {
				if _, ok := task[c]; ok {
					shared++
				}
			}
			if shared != 2 {
				t.Errorf("%s shares %d capabilities with TASK, want exactly 2 (REPORT_STATUS, QUERY_KNOWLEDGE)", tier, shared)
			}
		})
	}

	// All three critic tiers carry the identical set — specialty is which
	// findings a critic is asked to produce, not a distinct capability.
	code := baseCapabilitiesForTier(TierCriticCode)
	output := baseCapabilitiesForTier(TierCriticOutput)
	plan := baseCapabilitiesForTier(TierCriticPlan)
	if len(code) != len(output) || len(output) != len(plan) {
		t.Fatalf("critic tiers have mismatched capability set sizes: code=%d output=%d plan=%d", len(code), len(output), len(plan))
	}
}

func TestBaseCapabilities_CouncilWithholdsEscalationCapabilities(t *testing.T) {
	council := baseCapabilitiesForTier(TierCouncil)
	for _, c := range []Capability{CapEscalateBlocker, CapRequestClarification} {
		if _, ok := council[c]; ok {
			t.Errorf("COUNCIL must not hold %q — it has no Lead above it to escalate to or ask clarification from", c)
		}
	}
}

func TestEffectiveCapabilities_GrantedAndRevoked(t *testing.T) {
	agent := AgentView{
		TierID: "30001",
		Tier:   TierTask,
		Caps: CapabilitySet{
			Granted: []Capability{CapSpawnTaskAgent},
			Revoked: []Capability{CapUseTools},
		},
	}

	effective := EffectiveCapabilities(agent)

	if _, ok := effective[CapSpawnTaskAgent]; !ok {
		t.Error("expected granted capability CapSpawnTaskAgent in effective set")
	}
	if _, ok := effective[CapUseTools]; ok {
		t.Error("expected revoked capability CapUseTools absent from effective set")
	}
	if _, ok := effective[CapExecuteTask]; !ok {
		t.Error("expected base capability CapExecuteTask in effective set")
	}
}

func TestRegistry_Check(t *testing.T) {
	r := &Registry{}

	task := AgentView{TierID: "30001", Tier: TierTask}

	ok, err := r.Check(task, CapExecuteTask, false)
	if !ok || err != nil {
		t.Fatalf("expected task agent to hold CapExecuteTask, got ok=%v err=%v", ok, err)
	}

	ok, err = r.Check(task, CapSpawnLead, false)
	if ok || err != nil {
		t.Fatalf("expected task agent to lack CapSpawnLead without raise, got ok=%v err=%v", ok, err)
	}

	_, err = r.Check(task, CapSpawnLead, true)
	if err == nil {
		t.Fatal("expected PermissionDenied error when raise=true")
	}
	if agierr.KindOf(err) != agierr.KindPermissionDenied {
		t.Errorf("expected KindPermissionDenied, got %v", agierr.KindOf(err))
	}
}

func TestRequiredTier(t *testing.T) {
	tests := []struct {
		cap  Capability
		want Tier
	}{
		{CapVeto, TierHead},
		{CapVoteOnAmendment, TierCouncil},
		{CapSpawnTaskAgent, TierLead},
		{CapExecuteTask, TierTask},
	}
	for _, tt := range tests {
		if got := RequiredTier(tt.cap); got != tt.want {
			t.Errorf("RequiredTier(%q) = %v, want %v", tt.cap, got, tt.want)
		}
	}
}

func TestFallbackPrefixes(t *testing.T) {
	task := FallbackPrefixes(TierTask)
	want := []byte{'3', '4', '5', '6'}
	if len(task) != len(want) {
		t.Fatalf("TASK fallback prefixes = %v, want %v", task, want)
	}
	for i := range want {
		if task[i] != want[i] {
			t.Errorf("TASK fallback prefix[%d] = %c, want %c", i, task[i], want[i])
		}
	}

	if prefixes := FallbackPrefixes(TierCriticCode); len(prefixes) != 1 || prefixes[0] != '7' {
		t.Errorf("CRITIC_CODE fallback prefixes = %v, want [7] (no fallback)", prefixes)
	}
}
