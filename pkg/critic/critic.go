// Package critic implements the Critic Engine (§4.5): three independent
// specialties (code, output, plan) that review task output outside the
// democratic chain and hold absolute veto authority over it.
package critic

import (
	"time"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/identity"
)

// Specialty is one of the three independent critic specialties.
type Specialty string

const (
	SpecialtyCode   Specialty = "code"
	SpecialtyOutput Specialty = "output"
	SpecialtyPlan   Specialty = "plan"
)

// Tier returns the agent tier that holds this specialty.
func (s Specialty) Tier() identity.Tier {
	switch s {
	case SpecialtyCode:
		return identity.TierCriticCode
	case SpecialtyOutput:
		return identity.TierCriticOutput
	case SpecialtyPlan:
		return identity.TierCriticPlan
	default:
		return ""
	}
}

// Verdict is the outcome of a critic review.
type Verdict string

const (
	VerdictPass     Verdict = "pass"
	VerdictReject   Verdict = "reject"
	VerdictEscalate Verdict = "escalate"
)

// DefaultMaxRetries is the retry cap before a REJECT escalates (§4.5,
// matching the source's CriticService.DEFAULT_MAX_RETRIES).
const DefaultMaxRetries = 5

// DefaultReviewModel is used when a critic has no preferred_review_model of
// its own — distinct from any executor's default, preserving model
// orthogonality between executor and critic (§4.5).
const DefaultReviewModel = "gpt-4o-mini"

// AcceptanceCriterion is a single machine-validatable success criterion
// attached to a task (§3 AcceptanceCriterion).
type AcceptanceCriterion struct {
	Metric       string
	Threshold    any
	Validator    Specialty
	IsMandatory  bool
	Description  string
}

// CriterionResult is the outcome of evaluating one AcceptanceCriterion.
type CriterionResult struct {
	Metric       string `json:"metric"`
	Passed       bool   `json:"passed"`
	ActualValue  any    `json:"actual_value"`
	Threshold    any    `json:"threshold"`
	IsMandatory  bool   `json:"is_mandatory"`
	Notes        string `json:"notes,omitempty"`
}

// Aggregation summarizes a slice of CriterionResult.
type Aggregation struct {
	Total              int
	Passed             int
	Failed             int
	MandatoryFailures  []string
	AllMandatoryPassed bool
}

// CritiqueReview is the persisted record of a single critic review (§3
// CritiqueReview), linking a task output to a verdict.
type CritiqueReview struct {
	ID               uuid.UUID
	TaskRef          uuid.UUID
	SubtaskRef       *uuid.UUID
	Specialty        Specialty
	CriticAgentRef   uuid.UUID
	Verdict          Verdict
	RejectionReason  *string
	Suggestions      *string
	RetryCount       int
	MaxRetries       int
	ReviewDurationMs float64
	ModelUsed        string
	OutputHash       string
	CriteriaResults  []CriterionResult
	CriteriaEvaluated *int
	CriteriaPassed    *int
	ConsensusReached  bool
	ReviewedAt        time.Time
}

// CanRetry reports whether the task may still be retried within the team.
func (r CritiqueReview) CanRetry() bool {
	return r.RetryCount < r.MaxRetries
}

// Profile is a critic agent's review performance record (§4.5, ported from
// the source's CriticAgent subclass fields — reviews_completed,
// vetoes_issued, escalations_issued, passes_issued, avg_review_time_ms,
// preferred_review_model).
type Profile struct {
	ID                   uuid.UUID
	AgentRef             uuid.UUID
	Specialty            Specialty
	ReviewsCompleted     int
	VetoesIssued         int
	EscalationsIssued    int
	PassesIssued         int
	AvgReviewTimeMs      float64
	PreferredReviewModel string
}

// RecordReview updates review counters and the rolling average duration
// (ported from CriticAgent.record_review).
func (p *Profile) RecordReview(v Verdict, durationMs float64) {
	p.ReviewsCompleted++
	switch v {
	case VerdictPass:
		p.PassesIssued++
	case VerdictReject:
		p.VetoesIssued++
	case VerdictEscalate:
		p.EscalationsIssued++
	}
	if p.ReviewsCompleted > 1 {
		p.AvgReviewTimeMs = (p.AvgReviewTimeMs*float64(p.ReviewsCompleted-1) + durationMs) / float64(p.ReviewsCompleted)
	} else {
		p.AvgReviewTimeMs = durationMs
	}
}

// ApprovalRate is the percentage of reviews that passed.
func (p Profile) ApprovalRate() float64 {
	if p.ReviewsCompleted == 0 {
		return 0
	}
	return float64(p.PassesIssued) / float64(p.ReviewsCompleted) * 100
}

// VetoRate is the percentage of reviews that were vetoed.
func (p Profile) VetoRate() float64 {
	if p.ReviewsCompleted == 0 {
		return 0
	}
	return float64(p.VetoesIssued) / float64(p.ReviewsCompleted) * 100
}

// ReviewModel returns the model key this profile's critic should use,
// falling back to DefaultReviewModel to preserve model orthogonality.
func (p Profile) ReviewModel() string {
	if p.PreferredReviewModel != "" {
		return p.PreferredReviewModel
	}
	return DefaultReviewModel
}

// Response is the JSON projection of a CritiqueReview.
type Response struct {
	ID                uuid.UUID         `json:"id"`
	TaskRef           uuid.UUID         `json:"task_ref"`
	SubtaskRef        *string           `json:"subtask_ref,omitempty"`
	Specialty         string            `json:"specialty"`
	CriticAgentRef    uuid.UUID         `json:"critic_agent_ref"`
	Verdict           string            `json:"verdict"`
	RejectionReason   *string           `json:"rejection_reason,omitempty"`
	Suggestions       *string           `json:"suggestions,omitempty"`
	RetryCount        int               `json:"retry_count"`
	MaxRetries        int               `json:"max_retries"`
	CanRetry          bool              `json:"can_retry"`
	ReviewDurationMs  float64           `json:"review_duration_ms"`
	ModelUsed         string            `json:"model_used"`
	OutputHash        string            `json:"output_hash"`
	CriteriaResults   []CriterionResult `json:"criteria_results,omitempty"`
	CriteriaEvaluated *int              `json:"criteria_evaluated,omitempty"`
	CriteriaPassed    *int              `json:"criteria_passed,omitempty"`
	ConsensusReached  bool              `json:"consensus_reached"`
	ReviewedAt        time.Time         `json:"reviewed_at"`
}

// ToResponse converts a CritiqueReview to its API projection.
func (r CritiqueReview) ToResponse() Response {
	resp := Response{
		ID:                r.ID,
		TaskRef:           r.TaskRef,
		Specialty:         string(r.Specialty),
		CriticAgentRef:    r.CriticAgentRef,
		Verdict:           string(r.Verdict),
		RejectionReason:   r.RejectionReason,
		Suggestions:       r.Suggestions,
		RetryCount:        r.RetryCount,
		MaxRetries:        r.MaxRetries,
		CanRetry:          r.CanRetry(),
		ReviewDurationMs:  r.ReviewDurationMs,
		ModelUsed:         r.ModelUsed,
		OutputHash:        r.OutputHash,
		CriteriaResults:   r.CriteriaResults,
		CriteriaEvaluated: r.CriteriaEvaluated,
		CriteriaPassed:    r.CriteriaPassed,
		ConsensusReached:  r.ConsensusReached,
		ReviewedAt:        r.ReviewedAt,
	}
	if r.SubtaskRef != nil {
		s := r.SubtaskRef.String()
		resp.SubtaskRef = &s
	}
	return resp
}
