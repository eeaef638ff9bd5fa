// Package lifecycle implements the Lifecycle Manager (§4.8): spawning,
// promoting, and liquidating agents, plus id-pool capacity reporting and a
// best-effort preference-optimizer idle loop.
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/identity"
)

// Capacity thresholds (§4.8 capacity()): warning at 80% of a tier's 10,000-id
// space consumed, critical at 95%.
const (
	warningThresholdPct  = 80
	criticalThresholdPct = 95
	tierIDSpace          = 10000
)

// capacityPerPrefix is the number of ids available under a single prefix
// digit (4 decimal digits after the prefix, per §4.1's probePrefix space).
const capacityPerPrefix = tierIDSpace

// TierCapacity reports free/used id counts for one tier.
type TierCapacity struct {
	Tier        identity.Tier `json:"tier"`
	Prefixes    []string      `json:"prefixes"`
	Allocated   int           `json:"allocated"`
	Capacity    int           `json:"capacity"`
	PercentUsed float64       `json:"percent_used"`
	Warning     bool          `json:"warning"`
	Critical    bool          `json:"critical"`
}

// newTierCapacity computes a TierCapacity report for one tier given its
// currently-allocated count.
func newTierCapacity(tier identity.Tier, allocated int) TierCapacity {
	prefixes := identity.FallbackPrefixes(tier)
	capacity := capacityPerPrefix * len(prefixes)
	pct := 0.0
	if capacity > 0 {
		pct = 100 * float64(allocated) / float64(capacity)
	}
	prefixStrs := make([]string, len(prefixes))
	for i, p := range prefixes {
		prefixStrs[i] = string(p)
	}
	return TierCapacity{
		Tier:        tier,
		Prefixes:    prefixStrs,
		Allocated:   allocated,
		Capacity:    capacity,
		PercentUsed: pct,
		Warning:     pct >= warningThresholdPct,
		Critical:    pct >= criticalThresholdPct,
	}
}

// CapacityReport is the full §4.8 capacity() response: one entry per tier,
// plus a flattened warning list for display.
type CapacityReport struct {
	Tiers    []TierCapacity `json:"tiers"`
	Warnings []string       `json:"warnings"`
}

var reportedTiers = []identity.Tier{
	identity.TierHead, identity.TierCouncil, identity.TierLead, identity.TierTask,
	identity.TierCriticCode, identity.TierCriticOutput, identity.TierCriticPlan,
}

// SpawnParams describes a §4.8 spawn(parent, tier, name, description, caps) call.
type SpawnParams struct {
	ParentRef   uuid.UUID
	Tier        identity.Tier
	Name        string
	Description string
}

// PromotionResult mirrors the source's PromotionResponse (tasks_transferred
// count alongside the old/new identities).
type PromotionResult struct {
	OldAgentRef     uuid.UUID `json:"old_agent_ref"`
	NewAgentRef     uuid.UUID `json:"new_agent_ref"`
	NewTierID       string    `json:"new_tier_id"`
	PromotedByRef   uuid.UUID `json:"promoted_by_ref"`
	Reason          string    `json:"reason"`
	TasksTransferred int      `json:"tasks_transferred"`
}

// LiquidationResult mirrors the source's LiquidationResponse.
type LiquidationResult struct {
	AgentRef             uuid.UUID `json:"agent_ref"`
	LiquidatedByRef      uuid.UUID `json:"liquidated_by_ref"`
	Reason               string    `json:"reason"`
	TasksCancelled       int       `json:"tasks_cancelled"`
	TasksReassigned      int       `json:"tasks_reassigned"`
	ChildAgentsNotified  int       `json:"child_agents_notified"`
	CapabilitiesRevoked  int       `json:"capabilities_revoked"`
}

// idlePreferenceInterval is the default tick period for the preference
// optimizer loop (SPEC_FULL.md Agent Store supplement).
const idlePreferenceInterval = 15 * time.Minute
