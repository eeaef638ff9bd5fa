package reincarnation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/pkg/agent"
	"github.com/neurotech-brt/agentium/pkg/ethos"
	"github.com/neurotech-brt/agentium/pkg/identity"
	"github.com/neurotech-brt/agentium/pkg/lifecycle"
	"github.com/neurotech-brt/agentium/pkg/modeladapter"
	"github.com/neurotech-brt/agentium/pkg/provider"
)

// maxBehavioralRules bounds behavioral_rules across long incarnation chains,
// matching the source's current_rules[-20:] trim.
const maxBehavioralRules = 20

// summaryMaxTokens bounds the reflection call (§4.9 step 1: "≤300-token
// life summary"); 400 leaves headroom for the model's own wrapping text.
const summaryMaxTokens = 400

// predecessorWisdomChars bounds how much of a life summary is folded
// verbatim into a successor's mission statement.
const predecessorWisdomChars = 200

// recentTerminationWindow bounds how far back PredecessorContext looks for
// a sibling to treat as "the" predecessor.
const recentTerminationWindow = 5 * time.Minute

// tokenBudgetTriggerRatio is the fraction of an agent's token_budget the
// Sweeper waits for before triggering reincarnation automatically (§4.9:
// "approaches a per-agent budget, e.g. 80% of context window").
const tokenBudgetTriggerRatio = 0.8

// Engine drives the §4.9 reincarnation cycle.
type Engine struct {
	agents    *agent.Store
	ethos     *ethos.Store
	registry  *identity.Registry
	lifecycle *lifecycle.Engine
	adapter   *modeladapter.Adapter
	audit     *audit.Writer
	logger    *slog.Logger
}

// NewEngine constructs a reincarnation Engine. lifecycleEngine supplies
// TransferTasks, shared with the Lifecycle Manager's promote operation
// (§4.8/§4.9 both move a predecessor's in-flight tasks to a new identity).
func NewEngine(agents *agent.Store, ethosStore *ethos.Store, registry *identity.Registry, lifecycleEngine *lifecycle.Engine, adapter *modeladapter.Adapter, auditWriter *audit.Writer, logger *slog.Logger) *Engine {
	return &Engine{
		agents: agents, ethos: ethosStore, registry: registry,
		lifecycle: lifecycleEngine, adapter: adapter, audit: auditWriter, logger: logger,
	}
}

// Reincarnate runs the full summarise → update-ethos → terminate →
// spawn-successor → transfer-task cycle for predecessorRef (§4.9).
// workContext is the recent conversation/work text to reflect on; it is
// truncated before being sent to the model, matching the source's
// 2000-character cap.
func (e *Engine) Reincarnate(ctx context.Context, predecessorRef uuid.UUID, workContext string) (Result, error) {
	predecessor, err := e.agents.Get(ctx, predecessorRef)
	if err != nil {
		return Result{}, err
	}

	incarnation := predecessor.IncarnationNumber
	result := Result{PredecessorRef: predecessor.ID, IncarnationNumber: incarnation}

	summary := e.summarize(ctx, predecessor, workContext, incarnation)
	result.Summarized = true
	result.WisdomAdded = summary

	if err := e.updateEthosWithWisdom(ctx, predecessor.ID, summary, incarnation); err != nil {
		return result, fmt.Errorf("updating ethos with wisdom: %w", err)
	}
	result.EthosUpdated = true

	if err := e.agents.UpdateStatus(ctx, predecessor.ID, agent.StatusTerminated); err != nil {
		return result, fmt.Errorf("terminating predecessor: %w", err)
	}
	result.Terminated = true
	e.logAudit(audit.LevelInfo, "REINCARNATION", "agent_death", predecessor.TierID, map[string]string{
		"incarnation": fmt.Sprint(incarnation), "reason": "context limit reached",
	})

	successor, err := e.spawnSuccessor(ctx, predecessor, summary)
	if err != nil {
		// §4.9: a spawn failure aborts the cycle; the predecessor stays
		// TERMINATED and the failure is flagged for operator review rather
		// than silently losing the agent.
		e.logAudit(audit.LevelCritical, "REINCARNATION", "successor_spawn_failed", predecessor.TierID, map[string]string{
			"incarnation": fmt.Sprint(incarnation), "error": err.Error(),
		})
		return result, fmt.Errorf("spawning successor: %w", err)
	}
	result.SuccessorSpawned = true
	result.SuccessorRef = successor.ID

	e.logAudit(audit.LevelInfo, "REINCARNATION", "agent_birth", successor.TierID, map[string]string{
		"predecessor": predecessor.TierID, "incarnation": fmt.Sprint(incarnation + 1),
	})

	transferred, err := e.lifecycle.TransferTasks(ctx, predecessor.ID, successor.ID)
	if err != nil {
		return result, fmt.Errorf("transferring tasks: %w", err)
	}
	result.TaskTransferred = transferred > 0

	return result, nil
}

// summarize produces a ≤300-token life summary via the predecessor's
// preferred provider (§4.9 step 1). A model-call failure degrades
// gracefully to a truncated textual summary rather than blocking the cycle.
func (e *Engine) summarize(ctx context.Context, predecessor agent.Agent, workContext string, incarnation int) string {
	kind := provider.KindOpenAI
	if predecessor.PreferredProviderRef != nil && *predecessor.PreferredProviderRef != "" {
		kind = provider.Kind(*predecessor.PreferredProviderRef)
	}

	systemPrompt := fmt.Sprintf(
		"You are the inner consciousness of agent %s reflecting on its life. This is incarnation #%d. "+
			"The agent is about to be reincarnated because it reached its context-window budget. "+
			"Summarize the key learnings, patterns, and wisdom from this life that should be preserved "+
			"for your successor, in 300 tokens or fewer.",
		predecessor.TierID, incarnation,
	)
	userPrompt := fmt.Sprintf(
		"Summarize the following work context into a life summary covering: key learnings, mistakes to "+
			"avoid next incarnation, what you were working on, and what remains unfinished.\n\n%s",
		truncate(workContext, 2000),
	)

	result, err := e.adapter.Generate(ctx, kind, nil, systemPrompt, userPrompt, modeladapter.GenerateOptions{
		MaxTokens: summaryMaxTokens, Temperature: 0.3,
	})
	if err != nil {
		e.logger.Warn("reincarnation summary failed, degrading to truncated text", "agent", predecessor.TierID, "error", err)
		// 1200 characters is roughly the summary's 300-token budget.
		return fmt.Sprintf("Incarnation %d: %d characters of experience. Summarization unavailable (%s). %s",
			incarnation, len(workContext), err, truncate(workContext, 1200))
	}
	if tokenErr := e.agents.IncrementTokenCount(ctx, predecessor.ID, result.TokensUsed); tokenErr != nil {
		e.logger.Warn("recording reflection token spend failed", "agent_id", predecessor.ID, "error", tokenErr)
	}
	return result.Content
}

// updateEthosWithWisdom appends the life summary as a [LIFE_n_WISDOM]
// behavioral rule and refreshes the mission statement's incarnation marker
// (§4.9 step 2).
func (e *Engine) updateEthosWithWisdom(ctx context.Context, predecessorID uuid.UUID, summary string, incarnation int) error {
	current, err := e.ethos.Read(ctx, predecessorID)
	if err != nil {
		return err
	}

	current.BehavioralRules = append(current.BehavioralRules, wisdomEntry(incarnation, summary))
	if len(current.BehavioralRules) > maxBehavioralRules {
		current.BehavioralRules = current.BehavioralRules[len(current.BehavioralRules)-maxBehavioralRules:]
	}
	current.MissionStatement = withIncarnationMarker(current.MissionStatement, incarnationMarker(incarnation, len(current.BehavioralRules)))

	_, err = e.ethos.Update(ctx, current)
	return err
}

// spawnSuccessor creates the new identity that continues predecessor's work
// (§4.9 step 4): same tier and parent, incarnation_number = predecessor+1,
// persistence and preferred provider carried over, predecessor's wisdom
// folded into the opening of the successor's mission statement.
func (e *Engine) spawnSuccessor(ctx context.Context, predecessor agent.Agent, summary string) (agent.Agent, error) {
	parentRef := predecessor.ID
	if predecessor.ParentRef != nil {
		parentRef = *predecessor.ParentRef
	}

	tierID, err := e.registry.AllocateTierID(ctx, predecessor.Tier, e.agents.TierIDInUse)
	if err != nil {
		return agent.Agent{}, err
	}

	successor, err := e.agents.Create(ctx, agent.CreateParams{
		TierID:              tierID,
		Tier:                predecessor.Tier,
		Name:                fmt.Sprintf("%s (Incarnation %d)", predecessor.Name, predecessor.IncarnationNumber+1),
		ParentRef:           &parentRef,
		IsPersistent:        predecessor.IsPersistent,
		ConstitutionVersion: predecessor.ConstitutionVersion,
	})
	if err != nil {
		return agent.Agent{}, err
	}

	if err := e.agents.SetIncarnationNumber(ctx, successor.ID, predecessor.IncarnationNumber+1); err != nil {
		return agent.Agent{}, fmt.Errorf("setting incarnation number: %w", err)
	}
	if predecessor.PreferredProviderRef != nil && *predecessor.PreferredProviderRef != "" {
		if err := e.agents.SetPreferredProvider(ctx, successor.ID, *predecessor.PreferredProviderRef); err != nil {
			return agent.Agent{}, fmt.Errorf("carrying over preferred provider: %w", err)
		}
	}

	mission := fmt.Sprintf("[PREDECESSOR: %s - Incarnation %d]\nInherited wisdom: %s\n\n%s",
		predecessor.TierID, predecessor.IncarnationNumber, truncate(summary, predecessorWisdomChars),
		lifecycle.DefaultMission(predecessor.Tier, successor.Name))

	successorEthos := ethos.Ethos{
		AgentRef:         successor.ID,
		MissionStatement: mission,
		BehavioralRules:  lifecycle.DefaultRules(predecessor.Tier),
		Restrictions:     lifecycle.DefaultRestrictions(predecessor.Tier),
		Capabilities:     lifecycle.CapabilityStrings(identity.BaseCapabilities(predecessor.Tier)),
	}
	createdEthos, err := e.ethos.Create(ctx, successorEthos)
	if err != nil {
		return agent.Agent{}, fmt.Errorf("creating successor ethos: %w", err)
	}
	if err := e.agents.SetEthosRef(ctx, successor.ID, createdEthos.ID); err != nil {
		return agent.Agent{}, fmt.Errorf("linking successor ethos: %w", err)
	}
	if err := e.agents.UpdateStatus(ctx, successor.ID, agent.StatusActive); err != nil {
		return agent.Agent{}, err
	}
	successor.Status = agent.StatusActive
	successor.EthosRef = &createdEthos.ID
	return successor, nil
}

// PredecessorView is what a freshly spawned successor learns by calling
// get_predecessor_context on its first run (§4.9 step 5).
type PredecessorView struct {
	HasPredecessor    bool     `json:"has_predecessor"`
	PredecessorTierID string   `json:"predecessor_tier_id,omitempty"`
	Wisdom            []string `json:"wisdom,omitempty"`
	Advice            string   `json:"advice"`
}

// PredecessorContext finds successorRef's most recently terminated sibling
// of the same tier and returns its accumulated wisdom, letting a fresh spawn
// recover what its predecessor was doing. Schema has no direct predecessor
// link, so the nearest same-tier, same-parent, recently terminated sibling
// stands in for it — the same heuristic the source uses (same role,
// terminated within the last few minutes).
func (e *Engine) PredecessorContext(ctx context.Context, successorRef uuid.UUID) (PredecessorView, error) {
	successor, err := e.agents.Get(ctx, successorRef)
	if err != nil {
		return PredecessorView{}, err
	}
	if successor.ParentRef == nil {
		return PredecessorView{HasPredecessor: false, Advice: "you are a fresh spawn with no parent; there is no predecessor to recover context from."}, nil
	}

	siblings, err := e.agents.ListChildren(ctx, *successor.ParentRef)
	if err != nil {
		return PredecessorView{}, fmt.Errorf("listing siblings: %w", err)
	}

	var candidates []agent.Agent
	cutoff := time.Now().Add(-recentTerminationWindow)
	for _, s := range siblings {
		if s.ID == successor.ID {
			continue
		}
		if s.Tier != successor.Tier || s.Status != agent.StatusTerminated {
			continue
		}
		if s.UpdatedAt.Before(cutoff) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return PredecessorView{HasPredecessor: false, Advice: "no recent predecessor found; you are a fresh spawn."}, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].UpdatedAt.After(candidates[j].UpdatedAt) })
	predecessor := candidates[0]

	var wisdom []string
	predecessorEthos, err := e.ethos.Read(ctx, predecessor.ID)
	if err == nil {
		wisdom = predecessorEthos.BehavioralRules
	}

	return PredecessorView{
		HasPredecessor:    true,
		PredecessorTierID: predecessor.TierID,
		Wisdom:            wisdom,
		Advice:            "if confused about your current task, consult your parent or supervisor agent for clarification.",
	}, nil
}

func (e *Engine) logAudit(level audit.Level, actorID, action, targetID string, detail map[string]string) {
	if e.audit == nil {
		return
	}
	d, _ := json.Marshal(detail)
	e.audit.Log(audit.Entry{
		Level:      level,
		ActorType:  "system",
		ActorID:    actorID,
		Action:     action,
		TargetType: "agent",
		TargetID:   targetID,
		Detail:     d,
	})
}
