package task

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/agierr"
	"github.com/neurotech-brt/agentium/pkg/critic"
)

// Handler provides HTTP handlers for the Task Pipeline API.
type Handler struct {
	pipeline *Pipeline
	store    *Store
	logger   *slog.Logger
}

// NewHandler creates a task Handler.
func NewHandler(pipeline *Pipeline, store *Store, logger *slog.Logger) *Handler {
	return &Handler{pipeline: pipeline, store: store, logger: logger}
}

// Routes returns a chi.Router with the task pipeline routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleListActive)
	r.Get("/{taskID}", h.handleGet)
	r.Post("/{taskID}/assign", h.handleAssign)
	r.Post("/{taskID}/execute", h.handleExecute)
	r.Post("/{taskID}/cancel", h.handleCancel)
	return r
}

type createCriterionRequest struct {
	Metric      string `json:"metric" validate:"required"`
	Threshold   any    `json:"threshold" validate:"required"`
	Validator   string `json:"validator" validate:"required,oneof=code output plan"`
	IsMandatory bool   `json:"is_mandatory"`
	Description string `json:"description"`
}

// createRequest is the JSON body for POST /tasks.
type createRequest struct {
	Title              string                    `json:"title" validate:"required,min=3"`
	Description        string                    `json:"description" validate:"required"`
	Priority            string                    `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	CreatedByRef         string                    `json:"created_by_ref,omitempty" validate:"omitempty,uuid"`
	AcceptanceCriteria   []createCriterionRequest  `json:"acceptance_criteria"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var createdBy *uuid.UUID
	if req.CreatedByRef != "" {
		id, err := uuid.Parse(req.CreatedByRef)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid created_by_ref")
			return
		}
		createdBy = &id
	}

	criteria := make([]critic.AcceptanceCriterion, len(req.AcceptanceCriteria))
	for i, c := range req.AcceptanceCriteria {
		criteria[i] = critic.AcceptanceCriterion{
			Metric: c.Metric, Threshold: c.Threshold, Validator: critic.Specialty(c.Validator),
			IsMandatory: c.IsMandatory, Description: c.Description,
		}
	}

	t, err := h.pipeline.Create(r.Context(), CreateParams{
		Title: req.Title, Description: req.Description, Priority: Priority(req.Priority),
		CreatedByRef: createdBy, AcceptanceCriteria: criteria,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, t.ToResponse())
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListActive(r.Context())
	if err != nil {
		h.logger.Error("listing active tasks", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list tasks")
		return
	}
	resp := make([]Response, len(tasks))
	for i, t := range tasks {
		resp[i] = t.ToResponse()
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseTaskID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid task id")
		return
	}
	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t.ToResponse())
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseTaskID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid task id")
		return
	}
	t, err := h.pipeline.AssignLead(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t.ToResponse())
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseTaskID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid task id")
		return
	}
	t, err := h.pipeline.Execute(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t.ToResponse())
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseTaskID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid task id")
		return
	}
	t, err := h.pipeline.Cancel(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t.ToResponse())
}

func (h *Handler) parseTaskID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "taskID"))
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	var ae *agierr.Error
	if errors.As(err, &ae) {
		httpserver.RespondError(w, agierr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
		return
	}
	h.logger.Error("task pipeline error", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
}
