package lifecycle

import (
	"strings"
	"testing"

	"github.com/neurotech-brt/agentium/pkg/identity"
)

func TestDefaultMission_PersonalisesWithName(t *testing.T) {
	mission := DefaultMission(identity.TierLead, "Atlas")
	if !strings.HasPrefix(mission, "I am Atlas.") {
		t.Errorf("expected mission to open with the agent's name, got: %s", mission)
	}
}

func TestDefaultMission_UnknownTierFallsBack(t *testing.T) {
	mission := DefaultMission(identity.Tier("BOGUS"), "Nameless")
	if !strings.Contains(mission, "Nameless") {
		t.Errorf("expected fallback mission to still mention the name, got: %s", mission)
	}
}

func TestDefaultRules_ReturnsIndependentCopy(t *testing.T) {
	rules := DefaultRules(identity.TierTask)
	if len(rules) == 0 {
		t.Fatal("expected TASK tier to have at least one rule")
	}
	rules[0] = "mutated"
	again := DefaultRules(identity.TierTask)
	if again[0] == "mutated" {
		t.Error("DefaultRules must return a copy, not the shared template slice")
	}
}

func TestDefaultRestrictions_CriticTiersForbidModifyingOutput(t *testing.T) {
	for _, tier := range []identity.Tier{identity.TierCriticCode, identity.TierCriticOutput, identity.TierCriticPlan} {
		found := false
		for _, r := range DefaultRestrictions(tier) {
			if strings.Contains(r, "accept or reject") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected %s restrictions to forbid modifying output, got %v", tier, DefaultRestrictions(tier))
		}
	}
}
