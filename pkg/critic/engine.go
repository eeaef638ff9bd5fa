package critic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/pkg/agent"
	"github.com/neurotech-brt/agentium/pkg/modeladapter"
	"github.com/neurotech-brt/agentium/pkg/vectorstore"
)

// Engine orchestrates critic review for task output (§4.5). It operates
// outside the democratic chain: critics never vote and their REJECT is
// absolute within the retry budget.
type Engine struct {
	store    *Store
	agents   *agent.Store
	adapter  *modeladapter.Adapter
	vectors  vectorstore.Store
	embedder vectorstore.Embedder // optional; case-law indexing is skipped without one
	logger   *slog.Logger
	audit    *audit.Writer
}

// NewEngine constructs a critic Engine. embedder may be nil, in which case
// hard REJECTs are not indexed into the critic_case_law collection.
func NewEngine(store *Store, agents *agent.Store, adapter *modeladapter.Adapter, vectors vectorstore.Store, embedder vectorstore.Embedder, logger *slog.Logger, auditWriter *audit.Writer) *Engine {
	return &Engine{store: store, agents: agents, adapter: adapter, vectors: vectors, embedder: embedder, logger: logger, audit: auditWriter}
}

// ReviewParams bundles the input to a single review.
type ReviewParams struct {
	TaskID          uuid.UUID
	SubtaskID       *uuid.UUID
	TaskDescription string
	OutputContent   string
	Specialty       Specialty
	Criteria        []AcceptanceCriterion
	RetryCount      int
}

// EscalationResult is returned when review exhausts the retry budget; the
// caller (Task Pipeline) is responsible for moving the task to DELIBERATING
// and routing it to COUNCIL with the attached review history (§4.5 retry &
// escalation — the Amendment state machine is never invoked here).
type EscalationResult struct {
	Reason     string
	TaskStatus string
}

// ReviewOutcome is the result of Engine.Review.
type ReviewOutcome struct {
	Review           CritiqueReview
	EffectiveVerdict Verdict
	AutoPassed       bool
	Cached           bool
	ConsensusReached bool
	Escalation       *EscalationResult
}

// Review runs a full critic review of output against the given specialty
// (§4.5). It is safe to call concurrently; each call claims its own critic
// by flipping that agent's status to REVIEWING for the duration.
func (e *Engine) Review(ctx context.Context, p ReviewParams) (ReviewOutcome, error) {
	critic, profile, ok, err := e.findAvailableCritic(ctx, p.Specialty, uuid.Nil)
	if err != nil {
		return ReviewOutcome{}, err
	}
	if !ok {
		e.logger.Warn("no critic available, auto-passing", "specialty", p.Specialty, "task_ref", p.TaskID)
		return ReviewOutcome{AutoPassed: true, EffectiveVerdict: VerdictPass}, nil
	}

	originalStatus := critic.Status
	if err := e.agents.UpdateStatus(ctx, critic.ID, agent.StatusReviewing); err != nil {
		return ReviewOutcome{}, err
	}

	start := time.Now()
	outputHash := sha256Hex(p.OutputContent)

	if cached, found, err := e.store.FindCached(ctx, p.TaskID, outputHash, p.Specialty); err != nil {
		_ = e.agents.UpdateStatus(ctx, critic.ID, originalStatus)
		return ReviewOutcome{}, err
	} else if found {
		_ = e.agents.UpdateStatus(ctx, critic.ID, originalStatus)
		return ReviewOutcome{Review: cached, EffectiveVerdict: cached.Verdict, Cached: true, ConsensusReached: cached.ConsensusReached}, nil
	}

	var criteriaResults []CriterionResult
	if len(p.Criteria) > 0 {
		criteriaResults = EvaluateCriteria(p.Criteria, p.OutputContent, p.Specialty)
		agg := Aggregate(criteriaResults)
		if !agg.AllMandatoryPassed {
			durationMs := time.Since(start).Seconds() * 1000
			reason := fmt.Sprintf("mandatory acceptance criteria failed: %s", strings.Join(agg.MandatoryFailures, ", "))
			suggestions := "fix the criteria listed in criteria_results before resubmitting"
			evaluated, passed := agg.Total, agg.Passed

			review := CritiqueReview{
				TaskRef: p.TaskID, SubtaskRef: p.SubtaskID, Specialty: p.Specialty,
				CriticAgentRef: critic.ID, Verdict: VerdictReject,
				RejectionReason: &reason, Suggestions: &suggestions,
				RetryCount: p.RetryCount, MaxRetries: DefaultMaxRetries,
				ReviewDurationMs: durationMs, ModelUsed: profile.ReviewModel(), OutputHash: outputHash,
				CriteriaResults: criteriaResults, CriteriaEvaluated: &evaluated, CriteriaPassed: &passed,
				ConsensusReached: true,
			}
			saved, err := e.store.Insert(ctx, review)
			if err != nil {
				_ = e.agents.UpdateStatus(ctx, critic.ID, originalStatus)
				return ReviewOutcome{}, err
			}
			profile.RecordReview(VerdictReject, durationMs)
			_ = e.store.SaveProfile(ctx, profile)
			_ = e.agents.UpdateStatus(ctx, critic.ID, originalStatus)
			e.logReview(ctx, p.TaskID, critic.ID, p.Specialty, VerdictReject, reason)
			return ReviewOutcome{Review: saved, EffectiveVerdict: VerdictReject, ConsensusReached: true}, nil
		}
	}

	verdict, reason, suggestions := e.executeReview(ctx, critic.ID, profile, p.Specialty, p.TaskDescription, p.OutputContent)
	durationMs := time.Since(start).Seconds() * 1000

	if verdict == VerdictReject && p.RetryCount >= DefaultMaxRetries {
		reason = fmt.Sprintf("max retries (%d) exhausted. Original: %s", DefaultMaxRetries, reason)
		verdict = VerdictEscalate
	}

	var reasonPtr, suggestionsPtr *string
	if verdict != VerdictPass {
		reasonPtr = &reason
	}
	if suggestions != "" {
		suggestionsPtr = &suggestions
	}
	var evaluatedPtr, passedPtr *int
	if criteriaResults != nil {
		agg := Aggregate(criteriaResults)
		evaluatedPtr, passedPtr = &agg.Total, &agg.Passed
	}

	review := CritiqueReview{
		TaskRef: p.TaskID, SubtaskRef: p.SubtaskID, Specialty: p.Specialty,
		CriticAgentRef: critic.ID, Verdict: verdict,
		RejectionReason: reasonPtr, Suggestions: suggestionsPtr,
		RetryCount: p.RetryCount, MaxRetries: DefaultMaxRetries,
		ReviewDurationMs: durationMs, ModelUsed: profile.ReviewModel(), OutputHash: outputHash,
		CriteriaResults: criteriaResults, CriteriaEvaluated: evaluatedPtr, CriteriaPassed: passedPtr,
		ConsensusReached: true,
	}
	saved, err := e.store.Insert(ctx, review)
	if err != nil {
		_ = e.agents.UpdateStatus(ctx, critic.ID, agent.StatusActive)
		return ReviewOutcome{}, err
	}

	profile.RecordReview(verdict, durationMs)
	_ = e.store.SaveProfile(ctx, profile)
	// Matches the source exactly: the mandatory-criteria-failure branch above
	// restores the critic's prior status, but a review that reaches this
	// point always leaves the critic ACTIVE regardless of what it was doing
	// before REVIEWING.
	_ = e.agents.UpdateStatus(ctx, critic.ID, agent.StatusActive)
	e.logReview(ctx, p.TaskID, critic.ID, p.Specialty, verdict, reason)

	outcome := ReviewOutcome{Review: saved, EffectiveVerdict: verdict, ConsensusReached: true}

	if verdict == VerdictReject {
		if p.RetryCount == 0 {
			if secondary, secProfile, ok, err := e.findAvailableCritic(ctx, p.Specialty, critic.ID); err == nil && ok {
				e.logger.Info("consensus protocol triggered", "secondary_critic", secondary.ID, "specialty", p.Specialty)
				secVerdict, _, _ := e.executeReview(ctx, secondary.ID, secProfile, p.Specialty, p.TaskDescription, p.OutputContent)
				if secVerdict == VerdictPass {
					e.logger.Warn("critic consensus failure: critics disagree, deferring to conditional pass",
						"task_ref", p.TaskID, "specialty", p.Specialty)
					outcome.EffectiveVerdict = VerdictPass
					outcome.ConsensusReached = false
				}
			}
		}

		if outcome.EffectiveVerdict == VerdictReject {
			e.indexCaseLaw(ctx, p, reason, suggestions)
		}
	}

	if verdict == VerdictEscalate {
		e.logEscalation(ctx, p.TaskID, p.Specialty, reason)
		outcome.Escalation = &EscalationResult{Reason: reason, TaskStatus: "deliberating"}
	}

	return outcome, nil
}

// findAvailableCritic returns the least-busy available critic of the given
// specialty (by reviews_completed ascending), excluding excludeID if it is
// not uuid.Nil (§4.5 consensus protocol's secondary critic lookup).
func (e *Engine) findAvailableCritic(ctx context.Context, specialty Specialty, excludeID uuid.UUID) (agent.Agent, Profile, bool, error) {
	candidates, err := e.agents.ListByTier(ctx, specialty.Tier(), false)
	if err != nil {
		return agent.Agent{}, Profile{}, false, fmt.Errorf("listing critic candidates: %w", err)
	}

	var best agent.Agent
	var bestProfile Profile
	found := false
	for _, cand := range candidates {
		if excludeID != uuid.Nil && cand.ID == excludeID {
			continue
		}
		if cand.Status != agent.StatusActive && cand.Status != agent.StatusIdleWorking {
			continue
		}
		prof, err := e.store.GetOrCreateProfile(ctx, cand.ID, specialty)
		if err != nil {
			return agent.Agent{}, Profile{}, false, err
		}
		if !found || prof.ReviewsCompleted < bestProfile.ReviewsCompleted {
			best, bestProfile, found = cand, prof, true
		}
	}
	return best, bestProfile, found, nil
}

func (e *Engine) indexCaseLaw(ctx context.Context, p ReviewParams, reason, suggestions string) {
	if e.vectors == nil || e.embedder == nil {
		return
	}
	content := fmt.Sprintf(
		"REJECTED OUTPUT CASE LAW\nTask: %s\nReason for rejection: %s\nCritic actionable feedback: %s\nDo not repeat the mistakes found in this output pattern.",
		p.TaskDescription, reason, suggestions,
	)
	embedding, err := e.embedder.Embed(ctx, content)
	if err != nil {
		e.logger.Error("embedding case law entry", "error", err, "task_ref", p.TaskID)
		return
	}
	err = e.vectors.Add(ctx, vectorstore.CollectionCriticCaseLaw, vectorstore.Record{
		ID:        uuid.New(),
		Text:      content,
		Metadata:  map[string]string{"specialty": string(p.Specialty), "task_ref": p.TaskID.String()},
		Embedding: embedding,
	})
	if err != nil {
		e.logger.Error("indexing case law entry", "error", err, "task_ref", p.TaskID)
	}
}

func (e *Engine) logReview(ctx context.Context, taskID, criticID uuid.UUID, specialty Specialty, verdict Verdict, reason string) {
	level := audit.LevelInfo
	if verdict != VerdictPass {
		level = audit.LevelWarning
	}
	desc := fmt.Sprintf("critic %s (%s) verdict: %s", criticID, specialty, verdict)
	if reason != "" {
		desc += " — " + truncate(reason, 200)
	}
	e.audit.Log(audit.Entry{
		Level: level, ActorType: "critic", ActorID: criticID.String(),
		Action: "critic_review_" + string(verdict), TargetType: "task", TargetID: taskID.String(),
		Detail: detailJSON(map[string]string{"description": desc}),
	})
}

func (e *Engine) logEscalation(ctx context.Context, taskID uuid.UUID, specialty Specialty, reason string) {
	desc := fmt.Sprintf("task %s escalated to Council after max retries. Specialty: %s. Reason: %s", taskID, specialty, truncate(reason, 200))
	e.audit.Log(audit.Entry{
		Level: audit.LevelWarning, ActorType: "critic", ActorID: "critic_" + string(specialty),
		Action: "critic_escalation", TargetType: "task", TargetID: taskID.String(),
		Detail: detailJSON(map[string]string{"description": desc}),
	})
}

func detailJSON(v map[string]string) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
