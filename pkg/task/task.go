// Package task implements the Task Pipeline (§4.7): creates a task,
// delegates it through the LEAD/TASK hierarchy, drives the
// execute→review→retry loop against the Critic Engine, and tracks
// acceptance criteria to completion.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/critic"
)

// Status is a task's position in the §4.7 state machine.
type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusAssigned      Status = "ASSIGNED"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusDeliberating  Status = "DELIBERATING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusCancelled     Status = "CANCELLED"
)

// Priority is a task's scheduling priority, used only for LEAD queueing —
// it has no bearing on the critic retry/escalation path.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PlanStep is one step of a task's execution plan, as produced by the
// assigned LEAD or TASK agent before execution (distinct from an agent's
// own ethos ActivePlan).
type PlanStep struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Task is the persistent record described in §3.
type Task struct {
	ID                 uuid.UUID
	Title               string
	Description         string
	Status              Status
	Priority             Priority
	CreatedByRef         *uuid.UUID
	AssignedAgents       []uuid.UUID
	Plan                 []PlanStep
	Output               string
	AcceptanceCriteria   []critic.AcceptanceCriterion
	RetryCount           int
	ProgressPercent      int
	LastCriticSuggestion string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanRetry reports whether another REJECT can still be absorbed within the
// same team before the engine must escalate (§3 invariant: retry_count ≤ 5).
func (t Task) CanRetry() bool {
	return t.RetryCount < critic.DefaultMaxRetries
}

// IsTerminal reports whether the task has left the active pipeline.
func (t Task) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// criterionPayload is the JSON projection of a critic.AcceptanceCriterion,
// since that type carries no json tags of its own (pkg/critic only ever
// marshals the evaluated CriterionResult, not the criterion definition).
type criterionPayload struct {
	Metric      string `json:"metric"`
	Threshold   any    `json:"threshold"`
	Validator   string `json:"validator"`
	IsMandatory bool   `json:"is_mandatory"`
	Description string `json:"description"`
}

func toCriterionPayloads(cs []critic.AcceptanceCriterion) []criterionPayload {
	out := make([]criterionPayload, len(cs))
	for i, c := range cs {
		out[i] = criterionPayload{
			Metric: c.Metric, Threshold: c.Threshold, Validator: string(c.Validator),
			IsMandatory: c.IsMandatory, Description: c.Description,
		}
	}
	return out
}

func fromCriterionPayloads(ps []criterionPayload) []critic.AcceptanceCriterion {
	out := make([]critic.AcceptanceCriterion, len(ps))
	for i, p := range ps {
		out[i] = critic.AcceptanceCriterion{
			Metric: p.Metric, Threshold: p.Threshold, Validator: critic.Specialty(p.Validator),
			IsMandatory: p.IsMandatory, Description: p.Description,
		}
	}
	return out
}

// Response is the JSON projection of a Task.
type Response struct {
	ID                   uuid.UUID          `json:"id"`
	Title                string             `json:"title"`
	Description          string             `json:"description"`
	Status               string             `json:"status"`
	Priority             string             `json:"priority"`
	CreatedByRef         *uuid.UUID         `json:"created_by_ref,omitempty"`
	AssignedAgents       []uuid.UUID        `json:"assigned_agents"`
	Plan                 []PlanStep         `json:"plan"`
	Output               string             `json:"output,omitempty"`
	AcceptanceCriteria   []criterionPayload `json:"acceptance_criteria"`
	RetryCount           int                `json:"retry_count"`
	CanRetry             bool               `json:"can_retry"`
	ProgressPercent      int                `json:"progress_percent"`
	LastCriticSuggestion string             `json:"last_critic_suggestion,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// ToResponse converts a Task to its API projection.
func (t Task) ToResponse() Response {
	agents := t.AssignedAgents
	if agents == nil {
		agents = []uuid.UUID{}
	}
	plan := t.Plan
	if plan == nil {
		plan = []PlanStep{}
	}
	return Response{
		ID:                   t.ID,
		Title:                t.Title,
		Description:          t.Description,
		Status:               string(t.Status),
		Priority:             string(t.Priority),
		CreatedByRef:         t.CreatedByRef,
		AssignedAgents:       agents,
		Plan:                 plan,
		Output:               t.Output,
		AcceptanceCriteria:   toCriterionPayloads(t.AcceptanceCriteria),
		RetryCount:           t.RetryCount,
		CanRetry:             t.CanRetry(),
		ProgressPercent:      t.ProgressPercent,
		LastCriticSuggestion: t.LastCriticSuggestion,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}
