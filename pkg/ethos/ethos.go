// Package ethos implements the Ethos & Constitution Store (§4.2): an
// immutable-versioned constitution plus a per-agent mutable ethos record.
package ethos

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Article is one numbered constitution article.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Constitution is the immutable-versioned governing document (§3).
type Constitution struct {
	ID                     uuid.UUID
	Version                string
	VersionNumber          int
	Preamble               string
	Articles               map[int]Article
	Prohibitions           []string
	SovereignPreferences   []string
	EffectiveDate          time.Time
	ReplacesVersionRef     *uuid.UUID
	ArchivedDate           *time.Time
	RatifiedByAmendmentRef *uuid.UUID
}

// IsActive reports whether this version is the currently-effective one
// (§3 invariant: a non-null archived_date implies inactive).
func (c Constitution) IsActive() bool {
	return c.ArchivedDate == nil
}

// PlanStep is one step of an agent's active plan.
type PlanStep struct {
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// maxLessonsLearned bounds ethos size across long incarnation chains
// (SPEC_FULL.md Ethos & Constitution Store supplement).
const maxLessonsLearned = 50

// Ethos is the per-agent mutable record (§3).
type Ethos struct {
	ID                      uuid.UUID
	AgentRef                uuid.UUID
	MissionStatement        string
	BehavioralRules         []string
	Restrictions            []string
	Capabilities            []string
	ConstitutionalReferences []string
	ActivePlan              []PlanStep
	WorkingState            json.RawMessage
	LessonsLearned          []string
	Version                 int
	UpdatedAt               time.Time
}

// Compress strips working_state and completed plan steps only, never rules
// or restrictions (§3 invariant ii), and caps lessons_learned at the most
// recent maxLessonsLearned entries.
func (e *Ethos) Compress() {
	e.WorkingState = nil

	remaining := e.ActivePlan[:0:0]
	for _, step := range e.ActivePlan {
		if !step.Completed {
			remaining = append(remaining, step)
		}
	}
	e.ActivePlan = remaining

	if len(e.LessonsLearned) > maxLessonsLearned {
		e.LessonsLearned = e.LessonsLearned[len(e.LessonsLearned)-maxLessonsLearned:]
	}
}

// AddLessonLearned appends a lesson, trimming to the most recent
// maxLessonsLearned entries.
func (e *Ethos) AddLessonLearned(lesson string) {
	e.LessonsLearned = append(e.LessonsLearned, lesson)
	if len(e.LessonsLearned) > maxLessonsLearned {
		e.LessonsLearned = e.LessonsLearned[len(e.LessonsLearned)-maxLessonsLearned:]
	}
}

// ConstitutionResponse is the JSON projection of a Constitution.
type ConstitutionResponse struct {
	ID            uuid.UUID       `json:"id"`
	Version       string          `json:"version"`
	VersionNumber int             `json:"version_number"`
	Preamble      string          `json:"preamble"`
	Articles      map[int]Article `json:"articles"`
	Prohibitions  []string        `json:"prohibitions"`
	EffectiveDate time.Time       `json:"effective_date"`
	IsActive      bool            `json:"is_active"`
	ArchivedDate  *time.Time      `json:"archived_date,omitempty"`
}

// ToResponse converts a Constitution to its API projection.
func (c Constitution) ToResponse() ConstitutionResponse {
	return ConstitutionResponse{
		ID:            c.ID,
		Version:       c.Version,
		VersionNumber: c.VersionNumber,
		Preamble:      c.Preamble,
		Articles:      c.Articles,
		Prohibitions:  c.Prohibitions,
		EffectiveDate: c.EffectiveDate,
		IsActive:      c.IsActive(),
		ArchivedDate:  c.ArchivedDate,
	}
}

// EthosResponse is the JSON projection of an Ethos.
type EthosResponse struct {
	ID                       uuid.UUID       `json:"id"`
	AgentRef                 uuid.UUID       `json:"agent_ref"`
	MissionStatement         string          `json:"mission_statement"`
	BehavioralRules          []string        `json:"behavioral_rules"`
	Restrictions             []string        `json:"restrictions"`
	Capabilities             []string        `json:"capabilities"`
	ConstitutionalReferences []string        `json:"constitutional_references"`
	ActivePlan               []PlanStep      `json:"active_plan"`
	WorkingState             json.RawMessage `json:"working_state,omitempty"`
	LessonsLearned           []string        `json:"lessons_learned"`
	Version                  int             `json:"version"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// ToResponse converts an Ethos to its API projection.
func (e Ethos) ToResponse() EthosResponse {
	return EthosResponse{
		ID:                       e.ID,
		AgentRef:                 e.AgentRef,
		MissionStatement:         e.MissionStatement,
		BehavioralRules:          e.BehavioralRules,
		Restrictions:             e.Restrictions,
		Capabilities:             e.Capabilities,
		ConstitutionalReferences: e.ConstitutionalReferences,
		ActivePlan:               e.ActivePlan,
		WorkingState:             e.WorkingState,
		LessonsLearned:           e.LessonsLearned,
		Version:                  e.Version,
		UpdatedAt:                e.UpdatedAt,
	}
}
