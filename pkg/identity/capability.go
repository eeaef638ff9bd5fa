// Package identity implements the Identity & Capability Registry (§4.1):
// tier-prefixed id allocation, tier base capability sets, and per-agent
// grant/revoke tracking.
package identity

import "sort"

// Capability is a symbolic permission name.
type Capability string

const (
	// HEAD (tier 0) capabilities.
	CapVeto               Capability = "veto"
	CapAmendConstitution  Capability = "amend_constitution"
	CapLiquidateAny       Capability = "liquidate_any"
	CapAdminVectorDB      Capability = "admin_vector_db"
	CapOverrideBudget     Capability = "override_budget"
	CapEmergencyShutdown  Capability = "emergency_shutdown"
	CapGrantCapability    Capability = "grant_capability"
	CapRevokeCapability   Capability = "revoke_capability"

	// COUNCIL (tier 1) capabilities.
	CapProposeAmendment  Capability = "propose_amendment"
	CapAllocateResources Capability = "allocate_resources"
	CapAuditSystem       Capability = "audit_system"
	CapModerateKnowledge Capability = "moderate_knowledge"
	CapSpawnLead         Capability = "spawn_lead"
	CapVoteOnAmendment   Capability = "vote_on_amendment"
	CapReviewViolations  Capability = "review_violations"
	CapManageChannels    Capability = "manage_channels"

	// LEAD (tier 2) capabilities.
	CapSpawnTaskAgent     Capability = "spawn_task_agent"
	CapDelegateWork       Capability = "delegate_work"
	CapRequestResources   Capability = "request_resources"
	CapSubmitKnowledge    Capability = "submit_knowledge"
	CapLiquidateTaskAgent Capability = "liquidate_task_agent"
	CapEscalateToCouncil  Capability = "escalate_to_council"

	// TASK (tiers 3-6) capabilities.
	CapExecuteTask          Capability = "execute_task"
	CapReportStatus         Capability = "report_status"
	CapEscalateBlocker      Capability = "escalate_blocker"
	CapQueryKnowledge       Capability = "query_knowledge"
	CapUseTools             Capability = "use_tools"
	CapRequestClarification Capability = "request_clarification"
)

// Tier is the agent hierarchy level, one per canonical tier-prefix digit.
type Tier string

const (
	TierHead         Tier = "HEAD"
	TierCouncil      Tier = "COUNCIL"
	TierLead         Tier = "LEAD"
	TierTask         Tier = "TASK"
	TierCriticCode   Tier = "CRITIC_CODE"
	TierCriticOutput Tier = "CRITIC_OUTPUT"
	TierCriticPlan   Tier = "CRITIC_PLAN"
)

// tierPrefixes maps each tier to its canonical leading digit, and TASK to
// its full fallback order (§4.1: "TASK may use any of 3,4,5,6").
var tierPrefixes = map[Tier][]byte{
	TierHead:         {'0'},
	TierCouncil:      {'1'},
	TierLead:         {'2'},
	TierTask:         {'3', '4', '5', '6'},
	TierCriticCode:   {'7'},
	TierCriticOutput: {'8'},
	TierCriticPlan:   {'9'},
}

// PrefixOf returns the canonical (first-preference) prefix digit for a tier.
func PrefixOf(t Tier) byte {
	return tierPrefixes[t][0]
}

// FallbackPrefixes returns the ordered set of prefix digits allocate_tier_id
// may probe for the given tier.
func FallbackPrefixes(t Tier) []byte {
	return tierPrefixes[t]
}

// TierForPrefix returns the Tier owning a given leading digit, or "" if the
// digit names no tier.
func TierForPrefix(prefix byte) Tier {
	for t, prefixes := range tierPrefixes {
		for _, p := range prefixes {
			if p == prefix {
				return t
			}
		}
	}
	return ""
}

// Tier base capability sets. LEAD and HEAD are unions of the sets below
// them; COUNCIL inherits only part of LEAD and TASK (see
// councilCapabilities), and the critic tiers share one small set.
var (
	taskCapabilities = map[Capability]struct{}{
		CapExecuteTask:          {},
		CapReportStatus:         {},
		CapEscalateBlocker:      {},
		CapQueryKnowledge:       {},
		CapUseTools:             {},
		CapRequestClarification: {},
	}

	leadCapabilities = union(taskCapabilities, map[Capability]struct{}{
		CapSpawnTaskAgent:     {},
		CapDelegateWork:       {},
		CapRequestResources:   {},
		CapSubmitKnowledge:    {},
		CapLiquidateTaskAgent: {},
		CapEscalateToCouncil:  {},
	})

	// councilCapabilities inherits only a subset of Lead and Task: it picks up
	// REQUEST_RESOURCES/SUBMIT_KNOWLEDGE/ESCALATE_TO_COUNCIL from Lead and
	// EXECUTE_TASK/REPORT_STATUS/QUERY_KNOWLEDGE/USE_TOOLS from Task, but
	// withholds ESCALATE_BLOCKER and REQUEST_CLARIFICATION — a Council member
	// never has anyone above it to escalate a blocker to, or ask for
	// clarification from (§4.1).
	councilCapabilities = map[Capability]struct{}{
		CapProposeAmendment:  {},
		CapAllocateResources: {},
		CapAuditSystem:       {},
		CapModerateKnowledge: {},
		CapSpawnLead:         {},
		CapVoteOnAmendment:   {},
		CapReviewViolations:  {},
		CapManageChannels:    {},
		CapRequestResources:  {},
		CapSubmitKnowledge:   {},
		CapEscalateToCouncil: {},
		CapExecuteTask:       {},
		CapReportStatus:      {},
		CapQueryKnowledge:    {},
		CapUseTools:          {},
	}

	headCapabilities = union(
		map[Capability]struct{}{
			CapVeto:              {},
			CapAmendConstitution: {},
			CapLiquidateAny:      {},
			CapAdminVectorDB:     {},
			CapOverrideBudget:    {},
			CapEmergencyShutdown: {},
			CapGrantCapability:   {},
			CapRevokeCapability:  {},
		},
		councilCapabilities,
		leadCapabilities,
	)

	// criticCapabilities is the one set shared by every critic tier regardless
	// of specialty — code, output, and plan critics all carry the identical
	// {VETO, REPORT_STATUS, QUERY_KNOWLEDGE} set (§4.1). A critic's specialty
	// is which findings it's asked to produce, not a distinct capability.
	criticCapabilities = map[Capability]struct{}{
		CapVeto:           {},
		CapReportStatus:   {},
		CapQueryKnowledge: {},
	}
)

func union(sets ...map[Capability]struct{}) map[Capability]struct{} {
	out := make(map[Capability]struct{})
	for _, s := range sets {
		for c := range s {
			out[c] = struct{}{}
		}
	}
	return out
}

// baseCapabilitiesForTier returns the immutable base capability set for a
// tier, keyed by the tier's canonical enum (not prefix, since TASK spans
// four prefixes but one capability set).
func baseCapabilitiesForTier(t Tier) map[Capability]struct{} {
	switch t {
	case TierHead:
		return headCapabilities
	case TierCouncil:
		return councilCapabilities
	case TierLead:
		return leadCapabilities
	case TierTask:
		return taskCapabilities
	case TierCriticCode, TierCriticOutput, TierCriticPlan:
		return criticCapabilities
	default:
		return nil
	}
}

// BaseCapabilities returns the base capability set for a tier as a sorted
// slice, safe to range over without mutating package state.
func BaseCapabilities(t Tier) []Capability {
	base := baseCapabilitiesForTier(t)
	out := make([]Capability, 0, len(base))
	for c := range base {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RequiredTier returns the least-privileged tier whose base set contains
// cap, checking TASK, LEAD, COUNCIL, HEAD and then the critic tiers, used to
// annotate PermissionDenied errors (§7).
func RequiredTier(cap Capability) Tier {
	order := []Tier{TierTask, TierLead, TierCouncil, TierHead, TierCriticCode, TierCriticOutput, TierCriticPlan}
	for _, t := range order {
		if _, ok := baseCapabilitiesForTier(t)[cap]; ok {
			return t
		}
	}
	return ""
}
