package modeladapter

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/provider"
)

// Handler provides HTTP handlers for the A/B testing experiment runner
// (§6, SPEC_FULL.md Model Adapter supplement).
type Handler struct {
	adapter *Adapter
	logger  *slog.Logger
}

// NewHandler creates a modeladapter Handler.
func NewHandler(adapter *Adapter, logger *slog.Logger) *Handler {
	return &Handler{adapter: adapter, logger: logger}
}

// Routes returns a chi.Router with the experiment routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/experiments", h.handleRunExperiment)
	return r
}

// experimentArmRequest is one arm in the request body.
type experimentArmRequest struct {
	ProviderKind string `json:"provider_kind" validate:"required"`
	Model        string `json:"model" validate:"required"`
}

// runExperimentRequest is the JSON body for POST /ab-testing/experiments.
type runExperimentRequest struct {
	Arms         []experimentArmRequest `json:"arms" validate:"required,min=2,dive"`
	SystemPrompt string                 `json:"system_prompt"`
	UserMessage  string                 `json:"user_message" validate:"required"`
}

// experimentArmResponse is one arm's reported outcome.
type experimentArmResponse struct {
	ProviderKind string `json:"provider_kind"`
	Model        string `json:"model"`
	Content      string `json:"content,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	LatencyMs    float64 `json:"latency_ms,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (h *Handler) handleRunExperiment(w http.ResponseWriter, r *http.Request) {
	var req runExperimentRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	arms := make([]ExperimentArm, len(req.Arms))
	for i, a := range req.Arms {
		arms[i] = ExperimentArm{Kind: provider.Kind(a.ProviderKind), Model: a.Model}
	}

	results := h.adapter.RunExperiment(r.Context(), arms, req.SystemPrompt, req.UserMessage)

	resp := make([]experimentArmResponse, len(results))
	for i, res := range results {
		arm := experimentArmResponse{ProviderKind: string(res.Arm.Kind), Model: res.Arm.Model}
		if res.Err != nil {
			arm.Error = res.Err.Error()
		} else {
			arm.Content = res.Result.Content
			arm.TokensUsed = res.Result.TokensUsed
			arm.LatencyMs = res.Result.LatencyMs
			arm.FinishReason = res.Result.FinishReason
		}
		resp[i] = arm
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"results": resp})
}
