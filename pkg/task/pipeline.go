package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/pkg/agent"
	"github.com/neurotech-brt/agentium/pkg/agierr"
	"github.com/neurotech-brt/agentium/pkg/critic"
	"github.com/neurotech-brt/agentium/pkg/ethos"
	"github.com/neurotech-brt/agentium/pkg/identity"
	"github.com/neurotech-brt/agentium/pkg/modeladapter"
	"github.com/neurotech-brt/agentium/pkg/provider"
)

// selfExecuteMaxChars bounds when a LEAD self-executes a task rather than
// delegating to a TASK agent (§4.7 step 2: "self-execute for small tasks").
const selfExecuteMaxChars = 280

// Pipeline drives the §4.7 execute→review→retry loop: it owns no review
// authority of its own (that lives entirely in the Critic Engine) and
// carries no amendment logic (escalation only ever routes to COUNCIL, never
// the Amendment state machine, per §4.5 "Retry & escalation").
type Pipeline struct {
	store    *Store
	agents   *agent.Store
	ethos    *ethos.Store
	critics  *critic.Engine
	adapter  *modeladapter.Adapter
	registry *identity.Registry
	audit    *audit.Writer
	logger   *slog.Logger
}

// NewPipeline constructs a task Pipeline.
func NewPipeline(store *Store, agents *agent.Store, ethosStore *ethos.Store, critics *critic.Engine, adapter *modeladapter.Adapter, registry *identity.Registry, auditWriter *audit.Writer, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store: store, agents: agents, ethos: ethosStore, critics: critics,
		adapter: adapter, registry: registry, audit: auditWriter, logger: logger,
	}
}

// CreateParams describes a new task as submitted by a principal.
type CreateParams struct {
	Title              string
	Description        string
	Priority           Priority
	CreatedByRef       *uuid.UUID
	AcceptanceCriteria []critic.AcceptanceCriterion
}

// Create persists a new task in DRAFT status (§4.7 step 1, first half).
func (p *Pipeline) Create(ctx context.Context, params CreateParams) (Task, error) {
	priority := params.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	t := Task{
		Title: params.Title, Description: params.Description, Priority: priority,
		CreatedByRef: params.CreatedByRef, AcceptanceCriteria: params.AcceptanceCriteria,
	}
	created, err := p.store.Create(ctx, t)
	if err != nil {
		return Task{}, err
	}
	p.logAudit(ctx, created.ID, "task_created", audit.LevelInfo, nil)
	return created, nil
}

// AssignLead picks the LEAD with the fewest completed tasks and assigns the
// task to it (§4.7 step 1, second half: "load-balancing completed-task
// count").
func (p *Pipeline) AssignLead(ctx context.Context, taskID uuid.UUID) (Task, error) {
	t, err := p.store.Get(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.Status != StatusDraft {
		return Task{}, agierr.New(agierr.KindInvariantViolation, fmt.Sprintf("task %s is not in DRAFT", taskID))
	}

	lead, err := p.leastBusyByTier(ctx, identity.TierLead)
	if err != nil {
		return Task{}, err
	}

	t.AssignedAgents = []uuid.UUID{lead.ID}
	t.Status = StatusAssigned
	updated, err := p.store.Update(ctx, t)
	if err != nil {
		return Task{}, err
	}
	if err := p.agents.UpdateStatus(ctx, lead.ID, agent.StatusWorking); err != nil {
		p.logger.Warn("failed to mark lead as working", "error", err, "agent_id", lead.ID)
	}
	p.logAudit(ctx, taskID, "task_assigned", audit.LevelInfo, map[string]string{"lead_ref": lead.ID.String()})
	return updated, nil
}

// leastBusyByTier returns the ACTIVE or IDLE_WORKING agent of tier with the
// lowest TasksCompleted count.
func (p *Pipeline) leastBusyByTier(ctx context.Context, tier identity.Tier) (agent.Agent, error) {
	candidates, err := p.agents.ListByTier(ctx, tier, false)
	if err != nil {
		return agent.Agent{}, fmt.Errorf("listing %s agents: %w", tier, err)
	}
	var best *agent.Agent
	for i := range candidates {
		c := candidates[i]
		if c.Status != agent.StatusActive && c.Status != agent.StatusIdleWorking {
			continue
		}
		if best == nil || c.TasksCompleted < best.TasksCompleted {
			best = &candidates[i]
		}
	}
	if best == nil {
		return agent.Agent{}, agierr.New(agierr.KindNotFound, fmt.Sprintf("no available %s agent", tier))
	}
	return *best, nil
}

// Execute runs one attempt of the execute→review cycle (§4.7 steps 2–6).
// Call it again after a REJECT to run the next attempt with the critic's
// suggestions folded into the prompt; the task's Status reports which
// outcome this attempt reached.
func (p *Pipeline) Execute(ctx context.Context, taskID uuid.UUID) (Task, error) {
	t, err := p.store.Get(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if len(t.AssignedAgents) == 0 {
		return Task{}, agierr.New(agierr.KindInvariantViolation, fmt.Sprintf("task %s has no assigned agent", taskID))
	}
	if t.IsTerminal() {
		return t, nil
	}

	lead := t.AssignedAgents[0]
	executorID, err := p.selectExecutor(ctx, lead, t)
	if err != nil {
		return Task{}, err
	}
	executor, err := p.agents.Get(ctx, executorID)
	if err != nil {
		return Task{}, fmt.Errorf("getting executor: %w", err)
	}

	if t.Status == StatusAssigned {
		t.Status = StatusInProgress
	}
	if executorID != lead {
		t.AssignedAgents = appendUnique(t.AssignedAgents, executorID)
	}

	if err := p.preTaskRitual(ctx, executorID); err != nil {
		p.logger.Warn("pre-task ritual failed", "error", err, "agent_id", executorID)
	}

	output, err := p.runExecution(ctx, executor, t)
	if err != nil {
		return Task{}, fmt.Errorf("executing task: %w", err)
	}
	t.Output = output

	if err := p.postTaskRitual(ctx, executorID, t); err != nil {
		p.logger.Warn("post-task ritual failed", "error", err, "agent_id", executorID)
	}

	for _, specialty := range applicableSpecialties(t.AcceptanceCriteria) {
		outcome, err := p.critics.Review(ctx, critic.ReviewParams{
			TaskID: t.ID, TaskDescription: t.Description, OutputContent: t.Output,
			Specialty: specialty, Criteria: t.AcceptanceCriteria, RetryCount: t.RetryCount,
		})
		if err != nil {
			return Task{}, fmt.Errorf("critic review (%s): %w", specialty, err)
		}

		if outcome.Escalation != nil {
			t.Status = StatusDeliberating
			t.LastCriticSuggestion = outcome.Escalation.Reason
			if err := p.agents.UpdateStatus(ctx, executorID, agent.StatusDeliberating); err != nil {
				p.logger.Warn("failed to mark executor deliberating", "error", err, "agent_id", executorID)
			}
			p.logAudit(ctx, taskID, "task_escalated", audit.LevelWarning, map[string]string{"reason": outcome.Escalation.Reason})
			return p.store.Update(ctx, t)
		}

		if outcome.EffectiveVerdict == critic.VerdictReject {
			t.Status = StatusInProgress
			t.RetryCount++
			if outcome.Review.Suggestions != nil {
				t.LastCriticSuggestion = *outcome.Review.Suggestions
			}
			p.logAudit(ctx, taskID, "task_rejected", audit.LevelWarning, map[string]string{
				"specialty": string(specialty), "retry_count": fmt.Sprintf("%d", t.RetryCount),
			})
			return p.store.Update(ctx, t)
		}
	}

	t.Status = StatusCompleted
	t.ProgressPercent = 100
	t.LastCriticSuggestion = ""
	if err := p.agents.IncrementTaskCounter(ctx, executorID, true); err != nil {
		p.logger.Warn("failed to increment task counter", "error", err, "agent_id", executorID)
	}
	if err := p.agents.UpdateStatus(ctx, executorID, agent.StatusActive); err != nil {
		p.logger.Warn("failed to restore executor to active", "error", err, "agent_id", executorID)
	}
	p.logAudit(ctx, taskID, "task_completed", audit.LevelInfo, nil)
	return p.store.Update(ctx, t)
}

// selectExecutor implements §4.7 step 2: a LEAD self-executes small tasks,
// otherwise delegates to the least-busy TASK agent in its team. Delegation
// falls back to self-execution when no TASK child is available — spawning
// one is the Lifecycle Manager's responsibility, not the pipeline's.
func (p *Pipeline) selectExecutor(ctx context.Context, leadID uuid.UUID, t Task) (uuid.UUID, error) {
	if len(t.Description) <= selfExecuteMaxChars {
		return leadID, nil
	}
	children, err := p.agents.ListChildren(ctx, leadID)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("listing lead's team: %w", err)
	}
	best, ok := LeastBusyTaskChild(children, uuid.Nil)
	if !ok {
		p.logger.Warn("no TASK agent available for delegation, lead self-executing", "lead_id", leadID)
		return leadID, nil
	}
	return best.ID, nil
}

// LeastBusyTaskChild picks the active TASK-tier agent with the fewest
// completed tasks among children, excluding exclude. Shared by the
// pipeline's delegation step and the Lifecycle Manager's task-reassignment
// step on liquidation, so both pick a replacement executor the same way.
func LeastBusyTaskChild(children []agent.Agent, exclude uuid.UUID) (agent.Agent, bool) {
	var best *agent.Agent
	for i := range children {
		c := children[i]
		if c.ID == exclude {
			continue
		}
		if c.Tier != identity.TierTask {
			continue
		}
		if c.Status != agent.StatusActive && c.Status != agent.StatusIdleWorking {
			continue
		}
		if best == nil || c.TasksCompleted < best.TasksCompleted {
			best = &children[i]
		}
	}
	if best == nil {
		return agent.Agent{}, false
	}
	return *best, true
}

// preTaskRitual refreshes an executor's constitutional awareness before
// work begins (§4.7 step 3).
func (p *Pipeline) preTaskRitual(ctx context.Context, executorID uuid.UUID) error {
	e, err := p.ethos.Read(ctx, executorID)
	if err != nil {
		return fmt.Errorf("reading ethos: %w", err)
	}
	active, err := p.ethos.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("loading active constitution: %w", err)
	}
	ref := "constitution:" + active.Version
	for _, r := range e.ConstitutionalReferences {
		if r == ref {
			return nil
		}
	}
	refs := append(append([]string{}, e.ConstitutionalReferences...), ref)
	_, err = p.ethos.SetConstitutionalReferences(ctx, executorID, refs)
	return err
}

// postTaskRitual records the outcome as a lesson and compresses the ethos
// record so it does not grow unbounded across long incarnation chains
// (§4.7 step 3).
func (p *Pipeline) postTaskRitual(ctx context.Context, executorID uuid.UUID, t Task) error {
	lesson := fmt.Sprintf("task %s: produced %d chars of output", t.ID, len(t.Output))
	if _, err := p.ethos.AddLessonLearned(ctx, executorID, lesson); err != nil {
		return fmt.Errorf("recording lesson: %w", err)
	}
	if _, err := p.ethos.Compress(ctx, executorID); err != nil {
		return fmt.Errorf("compressing ethos: %w", err)
	}
	return nil
}

// runExecution calls the Model Adapter to produce the task's output,
// folding in the previous critic's suggestions on a retry attempt.
func (p *Pipeline) runExecution(ctx context.Context, executor agent.Agent, t Task) (string, error) {
	kind := provider.KindOpenAI
	if executor.PreferredProviderRef != nil && *executor.PreferredProviderRef != "" {
		kind = provider.Kind(*executor.PreferredProviderRef)
	}

	var userMessage strings.Builder
	userMessage.WriteString("TASK: ")
	userMessage.WriteString(t.Title)
	userMessage.WriteString("\n\n")
	userMessage.WriteString(t.Description)
	if t.LastCriticSuggestion != "" {
		userMessage.WriteString("\n\nA prior attempt was rejected. Address this before resubmitting:\n")
		userMessage.WriteString(t.LastCriticSuggestion)
	}

	result, err := p.adapter.Generate(ctx, kind, nil, executionSystemPrompt, userMessage.String(), modeladapter.GenerateOptions{
		MaxTokens: 2048, Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	if tokenErr := p.agents.IncrementTokenCount(ctx, executor.ID, result.TokensUsed); tokenErr != nil {
		p.logger.Warn("recording token spend failed", "agent_id", executor.ID, "error", tokenErr)
	}
	return result.Content, nil
}

const executionSystemPrompt = "You are a task-executing agent in a governed multi-agent system. " +
	"Produce the requested output directly — no meta-commentary about being an AI."

// Cancel moves a task to CANCELLED regardless of its current state, short of
// a terminal one.
func (p *Pipeline) Cancel(ctx context.Context, taskID uuid.UUID) (Task, error) {
	t, err := p.store.Get(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.IsTerminal() {
		return Task{}, agierr.New(agierr.KindInvariantViolation, fmt.Sprintf("task %s is already terminal", taskID))
	}
	t.Status = StatusCancelled
	updated, err := p.store.Update(ctx, t)
	if err != nil {
		return Task{}, err
	}
	p.logAudit(ctx, taskID, "task_cancelled", audit.LevelInfo, nil)
	return updated, nil
}

// applicableSpecialties returns the critic specialties that must review this
// attempt's output, in the fixed PLAN → CODE → OUTPUT order (§4.7 step 4).
// OUTPUT always runs since every attempt produces output that must satisfy
// the task; PLAN and CODE only run when a criterion targets them.
func applicableSpecialties(criteria []critic.AcceptanceCriterion) []critic.Specialty {
	wantsPlan, wantsCode := false, false
	for _, c := range criteria {
		switch c.Validator {
		case critic.SpecialtyPlan:
			wantsPlan = true
		case critic.SpecialtyCode:
			wantsCode = true
		}
	}
	specialties := make([]critic.Specialty, 0, 3)
	if wantsPlan {
		specialties = append(specialties, critic.SpecialtyPlan)
	}
	if wantsCode {
		specialties = append(specialties, critic.SpecialtyCode)
	}
	specialties = append(specialties, critic.SpecialtyOutput)
	return specialties
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func (p *Pipeline) logAudit(ctx context.Context, taskID uuid.UUID, action string, level audit.Level, detail map[string]string) {
	if p.audit == nil {
		return
	}
	var raw json.RawMessage
	if detail != nil {
		raw, _ = json.Marshal(detail)
	}
	p.audit.Log(audit.Entry{
		Level: level, ActorType: "task_pipeline", ActorID: "pipeline",
		Action: action, TargetType: "task", TargetID: taskID.String(), Detail: raw,
	})
}
