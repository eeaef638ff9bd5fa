// Package provider implements the Provider/Key Manager (§4.3): a thread-safe
// registry of provider keys with priority-ordered selection, failure-driven
// cooldowns, monthly budget enforcement, and outage notification.
package provider

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a model provider (§4.4's nine provider kinds).
type Kind string

const (
	KindOpenAI      Kind = "openai"
	KindAnthropic   Kind = "anthropic"
	KindAzureOpenAI Kind = "azure_openai"
	KindOpenRouter  Kind = "openrouter"
	KindOllama      Kind = "ollama"
	KindLMStudio    Kind = "lmstudio"
	KindTogether    Kind = "together"
	KindGroq        Kind = "groq"
	KindCustom      Kind = "custom"
)

// Status is a key's health state (§3).
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusTesting   Status = "TESTING"
	StatusCooldown  Status = "COOLDOWN"
	StatusError     Status = "ERROR"
	StatusExhausted Status = "EXHAUSTED"
)

// MaxFailuresBeforeCooldown is the failure_count threshold that trips a key
// into cooldown (§4.3, default 3).
const MaxFailuresBeforeCooldown = 3

// Cooldown durations (§4.3): rate-limit failures get the longer window.
const (
	RateLimitCooldown = 15 * time.Minute
	GeneralCooldown   = 5 * time.Minute
	RotationCooldown  = time.Hour
)

// NotificationDebounceSeconds bounds how often an outage alert re-fires per
// provider kind (§4.3.1, default 300).
const NotificationDebounceSeconds = 300

// Key is a single provider credential (§3 ProviderKey).
type Key struct {
	ID                 uuid.UUID
	ProviderKind        Kind
	EncryptedMaterial   []byte
	BaseURL             string
	DefaultModel        string
	Priority            int
	Status              Status
	FailureCount        int
	LastFailureAt       *time.Time
	CooldownUntil       *time.Time
	MonthlyBudget       float64
	CurrentSpend        float64
	SpendResetAt        time.Time
	LatencyP50Ms        float64
	LatencyP95Ms        float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsHealthy reports whether the key can serve a request of estimatedCost,
// given now (§4.3 step 2): not in cooldown, status != ERROR/EXHAUSTED, and
// within budget. It is a pure predicate — callers needing the cooldown
// auto-recovery state transition use Store.RecoverIfExpired first.
func (k Key) IsHealthy(now time.Time, estimatedCost float64) bool {
	if k.CooldownUntil != nil && k.CooldownUntil.After(now) {
		return false
	}
	if k.Status == StatusError || k.Status == StatusExhausted {
		return false
	}
	if k.MonthlyBudget > 0 && k.CurrentSpend+estimatedCost >= k.MonthlyBudget {
		return false
	}
	return true
}

// Response is the JSON projection of a Key. EncryptedMaterial is never
// serialized.
type Response struct {
	ID            uuid.UUID  `json:"id"`
	ProviderKind  Kind       `json:"provider_kind"`
	BaseURL       string     `json:"base_url"`
	DefaultModel  string     `json:"default_model"`
	Priority      int        `json:"priority"`
	Status        Status     `json:"status"`
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	MonthlyBudget float64    `json:"monthly_budget"`
	CurrentSpend  float64    `json:"current_spend"`
	SpendResetAt  time.Time  `json:"spend_reset_at"`
	LatencyP50Ms  float64    `json:"latency_p50_ms"`
	LatencyP95Ms  float64    `json:"latency_p95_ms"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ToResponse converts a Key to its API projection.
func (k Key) ToResponse() Response {
	return Response{
		ID:            k.ID,
		ProviderKind:  k.ProviderKind,
		BaseURL:       k.BaseURL,
		DefaultModel:  k.DefaultModel,
		Priority:      k.Priority,
		Status:        k.Status,
		FailureCount:  k.FailureCount,
		LastFailureAt: k.LastFailureAt,
		CooldownUntil: k.CooldownUntil,
		MonthlyBudget: k.MonthlyBudget,
		CurrentSpend:  k.CurrentSpend,
		SpendResetAt:  k.SpendResetAt,
		LatencyP50Ms:  k.LatencyP50Ms,
		LatencyP95Ms:  k.LatencyP95Ms,
		CreatedAt:     k.CreatedAt,
		UpdatedAt:     k.UpdatedAt,
	}
}

// CreateParams holds the fields needed to register a new key.
type CreateParams struct {
	ProviderKind      Kind
	EncryptedMaterial []byte
	BaseURL           string
	DefaultModel      string
	Priority          int
	MonthlyBudget     float64
}

// OutcomeReport is what a Model Adapter call reports back after dispatch.
type OutcomeReport struct {
	Success     bool
	ActualCost  float64
	LatencyMs   float64
	RateLimited bool
}
