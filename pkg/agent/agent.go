// Package agent implements the Agent Store (§3, §4.1/§4.8/§4.9 callers): the
// persistent record of every agent, its parent link, tier, status, ethos
// reference, and lifecycle counters.
package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/identity"
)

// Status is an agent's lifecycle state (§3).
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusActive       Status = "ACTIVE"
	StatusDeliberating Status = "DELIBERATING"
	StatusWorking      Status = "WORKING"
	StatusReviewing    Status = "REVIEWING"
	StatusIdleWorking  Status = "IDLE_WORKING"
	StatusSuspended    Status = "SUSPENDED"
	StatusTerminated   Status = "TERMINATED"
)

// Agent is the persistent record described in §3.
type Agent struct {
	ID                   uuid.UUID
	TierID               string // 5-digit decimal, first digit = tier prefix
	Tier                 identity.Tier
	Name                 string
	Status               Status
	ParentRef            *uuid.UUID
	EthosRef             *uuid.UUID
	PreferredProviderRef *string
	IsPersistent         bool
	IncarnationNumber    int
	ConstitutionVersion  string
	GrantedCaps          []identity.Capability
	RevokedCaps          []identity.Capability

	TasksCompleted    int
	TasksFailed       int
	IdleCycles        int
	TotalIdleSeconds  int64
	TokenCount        int64
	TokenBudget       int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// View projects an Agent into an identity.AgentView for capability checks,
// without pkg/identity needing to import pkg/agent.
func (a Agent) View() identity.AgentView {
	return identity.AgentView{
		TierID: a.TierID,
		Tier:   a.Tier,
		Caps: identity.CapabilitySet{
			Granted: a.GrantedCaps,
			Revoked: a.RevokedCaps,
		},
	}
}

// IsHead reports whether this is the unique persistent HEAD agent (§3 invariant i).
func (a Agent) IsHead() bool {
	return a.Tier == identity.TierHead
}

// IsCritic reports whether this agent is one of the three critic tiers
// (§3 invariant iii: a CRITIC agent never appears in a voting record).
func (a Agent) IsCritic() bool {
	switch a.Tier {
	case identity.TierCriticCode, identity.TierCriticOutput, identity.TierCriticPlan:
		return true
	default:
		return false
	}
}

// CanReceiveTasks reports whether the agent may be assigned new work
// (§3 invariant iv: TERMINATED cannot receive new task assignments).
func (a Agent) CanReceiveTasks() bool {
	return a.Status != StatusTerminated && a.Status != StatusSuspended
}

// NearingTokenBudget reports whether the agent's running token count has
// reached ratio of its budget (§4.9: "approaches a per-agent budget, e.g.
// 80% of context window"). A zero budget means unbudgeted — never triggers.
func (a Agent) NearingTokenBudget(ratio float64) bool {
	if a.TokenBudget <= 0 {
		return false
	}
	return float64(a.TokenCount) >= float64(a.TokenBudget)*ratio
}

// Response is the JSON projection of an Agent returned by the API.
type Response struct {
	ID                   uuid.UUID `json:"id"`
	TierID               string    `json:"tier_id"`
	Tier                 string    `json:"tier"`
	Name                 string    `json:"name"`
	Status               string    `json:"status"`
	ParentRef            *string   `json:"parent_ref,omitempty"`
	EthosRef             *string   `json:"ethos_ref,omitempty"`
	PreferredProviderRef *string   `json:"preferred_provider_ref,omitempty"`
	IsPersistent         bool      `json:"is_persistent"`
	IncarnationNumber    int       `json:"incarnation_number"`
	ConstitutionVersion  string    `json:"constitution_version"`
	GrantedCapabilities  []string  `json:"granted_capabilities"`
	RevokedCapabilities  []string  `json:"revoked_capabilities"`
	TasksCompleted       int       `json:"tasks_completed"`
	TasksFailed          int       `json:"tasks_failed"`
	IdleCycles           int       `json:"idle_cycles"`
	TotalIdleSeconds     int64     `json:"total_idle_seconds"`
	TokenCount           int64     `json:"token_count"`
	TokenBudget          int64     `json:"token_budget"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ToResponse converts an Agent to its API projection.
func (a Agent) ToResponse() Response {
	resp := Response{
		ID:                  a.ID,
		TierID:              a.TierID,
		Tier:                string(a.Tier),
		Name:                a.Name,
		Status:              string(a.Status),
		PreferredProviderRef: a.PreferredProviderRef,
		IsPersistent:        a.IsPersistent,
		IncarnationNumber:   a.IncarnationNumber,
		ConstitutionVersion: a.ConstitutionVersion,
		TasksCompleted:      a.TasksCompleted,
		TasksFailed:         a.TasksFailed,
		IdleCycles:          a.IdleCycles,
		TotalIdleSeconds:    a.TotalIdleSeconds,
		TokenCount:          a.TokenCount,
		TokenBudget:         a.TokenBudget,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
	if a.ParentRef != nil {
		s := a.ParentRef.String()
		resp.ParentRef = &s
	}
	if a.EthosRef != nil {
		s := a.EthosRef.String()
		resp.EthosRef = &s
	}
	for _, c := range a.GrantedCaps {
		resp.GrantedCapabilities = append(resp.GrantedCapabilities, string(c))
	}
	for _, c := range a.RevokedCaps {
		resp.RevokedCapabilities = append(resp.RevokedCapabilities, string(c))
	}
	return resp
}

// CreateParams holds the fields needed to persist a newly allocated agent.
type CreateParams struct {
	TierID              string
	Tier                identity.Tier
	Name                string
	ParentRef           *uuid.UUID
	EthosRef            *uuid.UUID
	IsPersistent        bool
	ConstitutionVersion string
	// TokenBudget overrides DefaultTokenBudget when positive.
	TokenBudget int64
}
