package lifecycle

import (
	"testing"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/identity"
	"github.com/neurotech-brt/agentium/pkg/provider"
)

func TestNewTierCapacity_BelowWarning(t *testing.T) {
	tc := newTierCapacity(identity.TierLead, 1000)
	if tc.Warning || tc.Critical {
		t.Errorf("1000/10000 = 10%% should trip neither threshold, got %+v", tc)
	}
}

func TestNewTierCapacity_Warning(t *testing.T) {
	tc := newTierCapacity(identity.TierLead, 8500)
	if !tc.Warning || tc.Critical {
		t.Errorf("8500/10000 = 85%% should warn but not critical, got %+v", tc)
	}
}

func TestNewTierCapacity_Critical(t *testing.T) {
	tc := newTierCapacity(identity.TierLead, 9600)
	if !tc.Warning || !tc.Critical {
		t.Errorf("9600/10000 = 96%% should be both warning and critical, got %+v", tc)
	}
}

func TestNewTierCapacity_TaskSpansFourPrefixes(t *testing.T) {
	tc := newTierCapacity(identity.TierTask, 0)
	if tc.Capacity != 40000 {
		t.Errorf("TASK capacity = %d, want 40000 (4 prefixes x 10000)", tc.Capacity)
	}
}

func TestRemoveUUID(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	out := removeUUID([]uuid.UUID{a, b, c}, b)
	if len(out) != 2 || out[0] != a || out[1] != c {
		t.Errorf("removeUUID dropped the wrong element: %v", out)
	}
}

func TestCapabilityStrings(t *testing.T) {
	caps := []identity.Capability{identity.CapExecuteTask, identity.CapUseTools}
	out := CapabilityStrings(caps)
	if len(out) != 2 || out[0] != "execute_task" || out[1] != "use_tools" {
		t.Errorf("CapabilityStrings = %v", out)
	}
}

func TestScoreKey_FailuresDominateLatency(t *testing.T) {
	noFailuresSlow := provider.Key{FailureCount: 0, LatencyP50Ms: 900}
	oneFailureFast := provider.Key{FailureCount: 1, LatencyP50Ms: 50}
	if scoreKey(noFailuresSlow) >= scoreKey(oneFailureFast) {
		t.Error("a single failure should outweigh a 900ms latency difference")
	}
}
