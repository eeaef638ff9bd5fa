package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/pkg/agent"
	"github.com/neurotech-brt/agentium/pkg/agierr"
	"github.com/neurotech-brt/agentium/pkg/ethos"
	"github.com/neurotech-brt/agentium/pkg/identity"
	"github.com/neurotech-brt/agentium/pkg/task"
)

// Engine implements §4.8's four operations: spawn, promote, liquidate,
// capacity.
type Engine struct {
	agents   *agent.Store
	ethos    *ethos.Store
	tasks    *task.Store
	registry *identity.Registry
	audit    *audit.Writer
	logger   *slog.Logger
}

// NewEngine constructs a lifecycle Engine.
func NewEngine(agents *agent.Store, ethosStore *ethos.Store, tasks *task.Store, registry *identity.Registry, auditWriter *audit.Writer, logger *slog.Logger) *Engine {
	return &Engine{agents: agents, ethos: ethosStore, tasks: tasks, registry: registry, audit: auditWriter, logger: logger}
}

// spawnCapFor returns the capability a parent must hold to spawn into tier,
// or "" if no tier requires a capability to spawn into it (HEAD/COUNCIL are
// never spawned through this path — HEAD is seeded, COUNCIL by operator
// action outside this engine).
func spawnCapFor(tier identity.Tier) identity.Capability {
	switch tier {
	case identity.TierLead:
		return identity.CapSpawnLead
	case identity.TierTask:
		return identity.CapSpawnTaskAgent
	default:
		return ""
	}
}

// Spawn creates a new agent under parent (§4.8 spawn). parent must hold the
// tier's spawn capability; a new id is allocated via the registry; a default
// ethos is copied from the tier template and personalised.
func (e *Engine) Spawn(ctx context.Context, p SpawnParams) (agent.Agent, error) {
	parent, err := e.agents.Get(ctx, p.ParentRef)
	if err != nil {
		return agent.Agent{}, err
	}

	if cap := spawnCapFor(p.Tier); cap != "" {
		if _, err := e.registry.Check(parent.View(), cap, true); err != nil {
			return agent.Agent{}, err
		}
	}

	tierID, err := e.registry.AllocateTierID(ctx, p.Tier, e.agents.TierIDInUse)
	if err != nil {
		return agent.Agent{}, err
	}

	created, err := e.agents.Create(ctx, agent.CreateParams{
		TierID:              tierID,
		Tier:                p.Tier,
		Name:                p.Name,
		ParentRef:            &p.ParentRef,
		ConstitutionVersion: parent.ConstitutionVersion,
	})
	if err != nil {
		return agent.Agent{}, err
	}

	newEthos := ethos.Ethos{
		AgentRef:         created.ID,
		MissionStatement: DefaultMission(p.Tier, p.Name) + " " + p.Description,
		BehavioralRules:  DefaultRules(p.Tier),
		Restrictions:     DefaultRestrictions(p.Tier),
		Capabilities:     CapabilityStrings(identity.BaseCapabilities(p.Tier)),
	}
	createdEthos, err := e.ethos.Create(ctx, newEthos)
	if err != nil {
		return agent.Agent{}, fmt.Errorf("creating default ethos: %w", err)
	}
	if err := e.agents.SetEthosRef(ctx, created.ID, createdEthos.ID); err != nil {
		return agent.Agent{}, fmt.Errorf("linking ethos to agent: %w", err)
	}
	created.EthosRef = &createdEthos.ID

	if err := e.agents.UpdateStatus(ctx, created.ID, agent.StatusActive); err != nil {
		return agent.Agent{}, err
	}
	created.Status = agent.StatusActive

	e.logAudit(audit.LevelInfo, parent.TierID, "agent_spawned", created.TierID, map[string]string{
		"tier": string(p.Tier), "name": p.Name,
	})
	return created, nil
}

// Promote converts a TASK agent into a new LEAD identity (§4.8 promote).
// promoter must be COUNCIL or HEAD; the target's in-flight tasks are
// reassigned to the new identity, TASK-only capabilities revoked, LEAD
// capabilities granted.
func (e *Engine) Promote(ctx context.Context, targetRef, promoterRef uuid.UUID, reason string) (PromotionResult, error) {
	promoter, err := e.agents.Get(ctx, promoterRef)
	if err != nil {
		return PromotionResult{}, err
	}
	if promoter.Tier != identity.TierCouncil && promoter.Tier != identity.TierHead {
		return PromotionResult{}, agierr.PermissionDenied(
			fmt.Sprintf("agent %s is not COUNCIL or HEAD and cannot promote", promoter.TierID),
			string(identity.TierCouncil),
		)
	}

	target, err := e.agents.Get(ctx, targetRef)
	if err != nil {
		return PromotionResult{}, err
	}
	if target.Tier != identity.TierTask {
		return PromotionResult{}, agierr.New(agierr.KindInvariantViolation,
			fmt.Sprintf("agent %s is tier %s, only TASK agents can be promoted to LEAD", target.TierID, target.Tier))
	}

	newTierID, err := e.registry.AllocateTierID(ctx, identity.TierLead, e.agents.TierIDInUse)
	if err != nil {
		return PromotionResult{}, err
	}

	promoted, err := e.agents.Create(ctx, agent.CreateParams{
		TierID:              newTierID,
		Tier:                identity.TierLead,
		Name:                target.Name,
		ParentRef:            &promoterRef,
		ConstitutionVersion: target.ConstitutionVersion,
	})
	if err != nil {
		return PromotionResult{}, err
	}

	leadEthos := ethos.Ethos{
		AgentRef:         promoted.ID,
		MissionStatement: DefaultMission(identity.TierLead, promoted.Name),
		BehavioralRules:  DefaultRules(identity.TierLead),
		Restrictions:     DefaultRestrictions(identity.TierLead),
		Capabilities:     CapabilityStrings(identity.BaseCapabilities(identity.TierLead)),
	}
	createdEthos, err := e.ethos.Create(ctx, leadEthos)
	if err != nil {
		return PromotionResult{}, fmt.Errorf("creating promoted ethos: %w", err)
	}
	if err := e.agents.SetEthosRef(ctx, promoted.ID, createdEthos.ID); err != nil {
		return PromotionResult{}, fmt.Errorf("linking ethos to promoted agent: %w", err)
	}
	if err := e.agents.UpdateStatus(ctx, promoted.ID, agent.StatusActive); err != nil {
		return PromotionResult{}, err
	}

	transferred, err := e.TransferTasks(ctx, target.ID, promoted.ID)
	if err != nil {
		return PromotionResult{}, err
	}

	if err := e.agents.UpdateStatus(ctx, target.ID, agent.StatusTerminated); err != nil {
		return PromotionResult{}, err
	}

	e.logAudit(audit.LevelInfo, promoter.TierID, "agent_promoted", promoted.TierID, map[string]string{
		"previous_tier_id":  target.TierID,
		"reason":            reason,
		"tasks_transferred": fmt.Sprint(transferred),
	})

	return PromotionResult{
		OldAgentRef:      target.ID,
		NewAgentRef:      promoted.ID,
		NewTierID:        promoted.TierID,
		PromotedByRef:    promoterRef,
		Reason:           reason,
		TasksTransferred: transferred,
	}, nil
}

// Liquidate terminates target (§4.8 liquidate). liquidator must hold a
// tier-dominating capability; HEAD cannot be liquidated unless force is set;
// persistent agents may only be liquidated with force set (the explicit
// violation flag the source calls for).
func (e *Engine) Liquidate(ctx context.Context, targetRef, liquidatorRef uuid.UUID, reason string, force bool) (LiquidationResult, error) {
	liquidator, err := e.agents.Get(ctx, liquidatorRef)
	if err != nil {
		return LiquidationResult{}, err
	}
	target, err := e.agents.Get(ctx, targetRef)
	if err != nil {
		return LiquidationResult{}, err
	}

	if target.IsHead() && !force {
		return LiquidationResult{}, agierr.New(agierr.KindInvariantViolation,
			"the Head agent cannot be liquidated without force=true")
	}
	if target.IsPersistent && !force {
		return LiquidationResult{}, agierr.New(agierr.KindInvariantViolation,
			fmt.Sprintf("agent %s is persistent; liquidation requires an explicit violation flag", target.TierID))
	}

	requiredCap := identity.CapLiquidateTaskAgent
	if target.Tier != identity.TierTask {
		requiredCap = identity.CapLiquidateAny
	}
	if _, err := e.registry.Check(liquidator.View(), requiredCap, true); err != nil {
		return LiquidationResult{}, err
	}

	inFlight, err := e.tasks.ListByAssignedAgent(ctx, target.ID)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("listing in-flight tasks: %w", err)
	}

	// A liquidated TASK agent's work looks for another TASK sibling under
	// the same LEAD before falling back to leaving it with whoever else is
	// assigned, or cancelling (§4.8 liquidate: "T is reassigned to another
	// TASK under the same LEAD, or CANCELLED if none available").
	var leadTeam []agent.Agent
	if target.Tier == identity.TierTask && target.ParentRef != nil {
		leadTeam, err = e.agents.ListChildren(ctx, *target.ParentRef)
		if err != nil {
			return LiquidationResult{}, fmt.Errorf("listing lead's team: %w", err)
		}
	}

	var cancelled, reassigned int
	for _, t := range inFlight {
		t.AssignedAgents = removeUUID(t.AssignedAgents, target.ID)

		if replacement, ok := task.LeastBusyTaskChild(leadTeam, target.ID); ok {
			t.AssignedAgents = appendUniqueUUID(t.AssignedAgents, replacement.ID)
			reassigned++
		} else if len(t.AssignedAgents) == 0 {
			t.Status = task.StatusCancelled
			cancelled++
		} else {
			reassigned++
		}

		if _, err := e.tasks.Update(ctx, t); err != nil {
			return LiquidationResult{}, fmt.Errorf("updating task %s: %w", t.ID, err)
		}
	}

	children, err := e.agents.ListChildren(ctx, target.ID)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("listing children: %w", err)
	}
	for _, child := range children {
		e.logAudit(audit.LevelInfo, "system", "child_notified_of_liquidation", child.TierID, map[string]string{
			"parent_tier_id": target.TierID,
		})
	}

	revoked := e.registry.RevokeAll(ctx, target.View(), reason)
	if err := e.agents.UpdateCapabilities(ctx, target.ID, revoked); err != nil {
		return LiquidationResult{}, fmt.Errorf("revoking capabilities: %w", err)
	}
	if err := e.agents.UpdateStatus(ctx, target.ID, agent.StatusTerminated); err != nil {
		return LiquidationResult{}, err
	}

	e.logAudit(audit.LevelWarning, liquidator.TierID, "agent_liquidated", target.TierID, map[string]string{
		"reason": reason, "force": fmt.Sprint(force),
	})

	return LiquidationResult{
		AgentRef:            target.ID,
		LiquidatedByRef:     liquidatorRef,
		Reason:              reason,
		TasksCancelled:      cancelled,
		TasksReassigned:     reassigned,
		ChildAgentsNotified: len(children),
		CapabilitiesRevoked: len(revoked.Revoked),
	}, nil
}

// Capacity returns per-tier id-pool capacity (§4.8 capacity()).
func (e *Engine) Capacity(ctx context.Context) (CapacityReport, error) {
	report := CapacityReport{}
	for _, tier := range reportedTiers {
		count, err := e.agents.CountActiveByTier(ctx, tier)
		if err != nil {
			return CapacityReport{}, fmt.Errorf("counting agents for tier %s: %w", tier, err)
		}
		tc := newTierCapacity(tier, count)
		report.Tiers = append(report.Tiers, tc)
		if tc.Critical {
			report.Warnings = append(report.Warnings, fmt.Sprintf("CRITICAL: %s tier at %.1f%% capacity", tier, tc.PercentUsed))
		} else if tc.Warning {
			report.Warnings = append(report.Warnings, fmt.Sprintf("WARNING: %s tier at %.1f%% capacity", tier, tc.PercentUsed))
		}
	}
	return report, nil
}

// TransferTasks moves every in-flight task from predecessor to successor in
// AssignedAgents, used by both Promote and the Reincarnation Controller's
// task-transfer step (§4.9 step 5).
func (e *Engine) TransferTasks(ctx context.Context, predecessor, successor uuid.UUID) (int, error) {
	inFlight, err := e.tasks.ListByAssignedAgent(ctx, predecessor)
	if err != nil {
		return 0, fmt.Errorf("listing predecessor tasks: %w", err)
	}
	for _, t := range inFlight {
		t.AssignedAgents = append(removeUUID(t.AssignedAgents, predecessor), successor)
		if _, err := e.tasks.Update(ctx, t); err != nil {
			return 0, fmt.Errorf("transferring task %s: %w", t.ID, err)
		}
	}
	return len(inFlight), nil
}

func removeUUID(ids []uuid.UUID, target uuid.UUID) []uuid.UUID {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func appendUniqueUUID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func CapabilityStrings(caps []identity.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

func (e *Engine) logAudit(level audit.Level, actorID, action, targetID string, detail map[string]string) {
	if e.audit == nil {
		return
	}
	d, _ := json.Marshal(detail)
	e.audit.Log(audit.Entry{
		Level:      level,
		ActorType:  "agent",
		ActorID:    actorID,
		Action:     action,
		TargetType: "agent",
		TargetID:   targetID,
		Detail:     d,
	})
}
