package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// CapabilitySet is an agent's stored dynamic grants/revocations, persisted
// alongside the agent record (agent_store.go owns the column; this package
// owns its semantics).
type CapabilitySet struct {
	Granted []Capability
	Revoked []Capability
}

// AgentView is the minimal agent projection the registry needs: it never
// imports pkg/agent directly (agent imports identity, not the reverse).
type AgentView struct {
	TierID string
	Tier   Tier
	Caps   CapabilitySet
}

// Registry allocates tier ids and evaluates/mutates capability sets. It is
// safe for concurrent use; tier-id allocation additionally serializes
// through a single mutex shared by all tiers so two concurrent spawns never
// race the same prefix scan.
type Registry struct {
	db      dbtx.DBTX
	audit   *audit.Writer
	allocMu sync.Mutex
}

// NewRegistry constructs a Registry.
func NewRegistry(db dbtx.DBTX, auditWriter *audit.Writer) *Registry {
	return &Registry{db: db, audit: auditWriter}
}

// EffectiveCapabilities computes base(tier) ∪ granted \ revoked (§3, §4.1).
func EffectiveCapabilities(agent AgentView) map[Capability]struct{} {
	base := baseCapabilitiesForTier(agent.Tier)
	effective := make(map[Capability]struct{}, len(base))
	for c := range base {
		effective[c] = struct{}{}
	}
	for _, c := range agent.Caps.Granted {
		effective[c] = struct{}{}
	}
	for _, c := range agent.Caps.Revoked {
		delete(effective, c)
	}
	return effective
}

// Check returns whether agent holds cap. When raise is true, a failure
// returns a *agierr.Error of KindPermissionDenied carrying the minimum tier
// hint instead of a plain bool (§4.1 check(agent, cap, raise=true)).
func (r *Registry) Check(agent AgentView, cap Capability, raise bool) (bool, error) {
	effective := EffectiveCapabilities(agent)
	_, ok := effective[cap]
	if !ok && raise {
		return false, agierr.PermissionDenied(
			fmt.Sprintf("agent %s lacks capability %q", agent.TierID, cap),
			string(RequiredTier(cap)),
		)
	}
	return ok, nil
}

// AllocateTierID reserves the next unused 5-digit id for tier, probing
// fallback prefixes in order on exhaustion (§4.1). isUsed is supplied by
// the caller and reports whether a tier id is already allocated, since the
// registry itself holds no agent table.
func (r *Registry) AllocateTierID(ctx context.Context, tier Tier, isUsed func(ctx context.Context, tierID string) (bool, error)) (string, error) {
	r.allocMu.Lock()
	defer r.allocMu.Unlock()

	for _, prefix := range FallbackPrefixes(tier) {
		id, ok, err := r.probePrefix(ctx, prefix, isUsed)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}
	return "", agierr.New(agierr.KindPoolExhausted,
		fmt.Sprintf("no free id for tier %s across prefixes %q", tier, FallbackPrefixes(tier)))
}

// probePrefix scans the 10,000-id space for a prefix digit and returns the
// first free id, or ok=false if the class is exhausted. A randomized
// starting offset spreads allocation across the space instead of always
// probing from the bottom, mirroring the teacher's randomized backoff style
// in pkg/roster's scheduling loop.
func (r *Registry) probePrefix(ctx context.Context, prefix byte, isUsed func(context.Context, string) (bool, error)) (string, bool, error) {
	const space = 10000 // 4 remaining digits after the prefix
	start := rand.Intn(space)
	for i := 0; i < space; i++ {
		n := (start + i) % space
		id := fmt.Sprintf("%c%04d", prefix, n)
		used, err := isUsed(ctx, id)
		if err != nil {
			return "", false, fmt.Errorf("checking tier id %s in use: %w", id, err)
		}
		if !used {
			return id, true, nil
		}
	}
	return "", false, nil
}

// Grant adds cap to target's granted set and removes it from revoked,
// provided grantor holds GRANT_CAPABILITY. Returns the updated CapabilitySet
// for the caller to persist.
func (r *Registry) Grant(ctx context.Context, target, grantor AgentView, cap Capability, reason string) (CapabilitySet, error) {
	if ok, err := r.Check(grantor, CapGrantCapability, true); !ok {
		return CapabilitySet{}, err
	}

	next := target.Caps
	next.Granted = addCapability(next.Granted, cap)
	next.Revoked = removeCapability(next.Revoked, cap)

	r.audit.Log(audit.Entry{
		Level:      audit.LevelInfo,
		ActorType:  "agent",
		ActorID:    grantor.TierID,
		Action:     "capability_granted",
		TargetType: "agent",
		TargetID:   target.TierID,
		Detail:     mustJSON(map[string]string{"capability": string(cap), "reason": reason}),
	})

	return next, nil
}

// Revoke adds cap to target's revoked set and removes it from granted,
// provided revoker holds REVOKE_CAPABILITY.
func (r *Registry) Revoke(ctx context.Context, target, revoker AgentView, cap Capability, reason string) (CapabilitySet, error) {
	if ok, err := r.Check(revoker, CapRevokeCapability, true); !ok {
		return CapabilitySet{}, err
	}

	next := target.Caps
	next.Revoked = addCapability(next.Revoked, cap)
	next.Granted = removeCapability(next.Granted, cap)

	r.audit.Log(audit.Entry{
		Level:      audit.LevelWarning,
		ActorType:  "agent",
		ActorID:    revoker.TierID,
		Action:     "capability_revoked",
		TargetType: "agent",
		TargetID:   target.TierID,
		Detail:     mustJSON(map[string]string{"capability": string(cap), "reason": reason}),
	})

	return next, nil
}

// RevokeAll revokes every base capability the target's tier holds, used
// during liquidation (§4.1 revoke_all).
func (r *Registry) RevokeAll(ctx context.Context, target AgentView, reason string) CapabilitySet {
	base := baseCapabilitiesForTier(target.Tier)
	revoked := make([]Capability, 0, len(base))
	for c := range base {
		revoked = append(revoked, c)
	}

	r.audit.Log(audit.Entry{
		Level:      audit.LevelWarning,
		ActorType:  "system",
		ActorID:    "identity_registry",
		Action:     "all_capabilities_revoked",
		TargetType: "agent",
		TargetID:   target.TierID,
		Detail:     mustJSON(map[string]any{"count": len(revoked), "reason": reason}),
	})

	return CapabilitySet{Granted: nil, Revoked: revoked}
}

func addCapability(set []Capability, cap Capability) []Capability {
	for _, c := range set {
		if c == cap {
			return set
		}
	}
	return append(set, cap)
}

func removeCapability(set []Capability, cap Capability) []Capability {
	out := set[:0:0]
	for _, c := range set {
		if c != cap {
			out = append(out, c)
		}
	}
	return out
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
