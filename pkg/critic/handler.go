package critic

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Handler provides HTTP handlers for the Critic Engine API.
type Handler struct {
	engine *Engine
	store  *Store
	logger *slog.Logger
}

// NewHandler creates a critic Handler.
func NewHandler(engine *Engine, store *Store, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, store: store, logger: logger}
}

// Routes returns a chi.Router with the critic review routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/review", h.handleReview)
	r.Get("/tasks/{taskID}/reviews", h.handleListForTask)
	return r
}

// reviewCriterionRequest is one acceptance criterion in a review request.
type reviewCriterionRequest struct {
	Metric      string `json:"metric" validate:"required"`
	Threshold   any    `json:"threshold" validate:"required"`
	Validator   string `json:"validator" validate:"required,oneof=code output plan"`
	IsMandatory bool   `json:"is_mandatory"`
	Description string `json:"description"`
}

// reviewRequest is the JSON body for POST /critic/review.
type reviewRequest struct {
	TaskID          string                   `json:"task_ref" validate:"required,uuid"`
	SubtaskID       string                   `json:"subtask_ref,omitempty" validate:"omitempty,uuid"`
	TaskDescription string                   `json:"task_description"`
	OutputContent   string                   `json:"output_content" validate:"required"`
	Specialty       string                   `json:"specialty" validate:"required,oneof=code output plan"`
	Criteria        []reviewCriterionRequest `json:"acceptance_criteria"`
	RetryCount      int                      `json:"retry_count"`
}

// reviewResponse is the JSON projection of a ReviewOutcome.
type reviewResponse struct {
	Review           *Response `json:"review,omitempty"`
	EffectiveVerdict string    `json:"effective_verdict"`
	AutoPassed       bool      `json:"auto_passed"`
	Cached           bool      `json:"cached"`
	ConsensusReached bool      `json:"consensus_reached"`
	Escalated        bool      `json:"escalated"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid task_ref")
		return
	}
	var subtaskID *uuid.UUID
	if req.SubtaskID != "" {
		id, err := uuid.Parse(req.SubtaskID)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid subtask_ref")
			return
		}
		subtaskID = &id
	}

	criteria := make([]AcceptanceCriterion, len(req.Criteria))
	for i, c := range req.Criteria {
		criteria[i] = AcceptanceCriterion{
			Metric: c.Metric, Threshold: c.Threshold, Validator: Specialty(c.Validator),
			IsMandatory: c.IsMandatory, Description: c.Description,
		}
	}

	outcome, err := h.engine.Review(r.Context(), ReviewParams{
		TaskID: taskID, SubtaskID: subtaskID, TaskDescription: req.TaskDescription,
		OutputContent: req.OutputContent, Specialty: Specialty(req.Specialty),
		Criteria: criteria, RetryCount: req.RetryCount,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}

	resp := reviewResponse{
		EffectiveVerdict: string(outcome.EffectiveVerdict),
		AutoPassed:       outcome.AutoPassed,
		Cached:           outcome.Cached,
		ConsensusReached: outcome.ConsensusReached,
	}
	if !outcome.AutoPassed {
		rr := outcome.Review.ToResponse()
		resp.Review = &rr
	}
	if outcome.Escalation != nil {
		resp.Escalated = true
		resp.EscalationReason = outcome.Escalation.Reason
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleListForTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid task id")
		return
	}
	reviews, err := h.store.ListForTask(r.Context(), taskID)
	if err != nil {
		h.logger.Error("listing critique reviews", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list reviews")
		return
	}
	resp := make([]Response, len(reviews))
	for i, rv := range reviews {
		resp[i] = rv.ToResponse()
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	var ae *agierr.Error
	if errors.As(err, &ae) {
		httpserver.RespondError(w, agierr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
		return
	}
	h.logger.Error("critic engine error", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
}
