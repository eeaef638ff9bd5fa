package lifecycle

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/agierr"
	"github.com/neurotech-brt/agentium/pkg/identity"
)

// Handler provides HTTP handlers for the §6 `/lifecycle` API.
type Handler struct {
	engine *Engine
	logger *slog.Logger
}

// NewHandler creates a lifecycle Handler.
func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Routes returns a chi.Router with the lifecycle routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/spawn/task", h.handleSpawnTask)
	r.Post("/spawn/lead", h.handleSpawnLead)
	r.Post("/promote", h.handlePromote)
	r.Post("/liquidate", h.handleLiquidate)
	r.Get("/capacity", h.handleCapacity)
	return r
}

type spawnRequest struct {
	ParentRef   string `json:"parent_ref" validate:"required,uuid"`
	Name        string `json:"name" validate:"required,min=3,max=100"`
	Description string `json:"description" validate:"required,min=10,max=500"`
}

func (h *Handler) handleSpawnTask(w http.ResponseWriter, r *http.Request) {
	h.handleSpawn(w, r, identity.TierTask)
}

func (h *Handler) handleSpawnLead(w http.ResponseWriter, r *http.Request) {
	h.handleSpawn(w, r, identity.TierLead)
}

func (h *Handler) handleSpawn(w http.ResponseWriter, r *http.Request, tier identity.Tier) {
	var req spawnRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	parentRef, err := uuid.Parse(req.ParentRef)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid parent_ref")
		return
	}
	a, err := h.engine.Spawn(r.Context(), SpawnParams{
		ParentRef: parentRef, Tier: tier, Name: req.Name, Description: req.Description,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, a.ToResponse())
}

type promoteRequest struct {
	TaskAgentRef string `json:"task_agent_ref" validate:"required,uuid"`
	PromotedBy   string `json:"promoted_by" validate:"required,uuid"`
	Reason       string `json:"reason" validate:"required,min=20,max=500"`
}

func (h *Handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	targetRef, err := uuid.Parse(req.TaskAgentRef)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid task_agent_ref")
		return
	}
	promoterRef, err := uuid.Parse(req.PromotedBy)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid promoted_by")
		return
	}
	result, err := h.engine.Promote(r.Context(), targetRef, promoterRef, req.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

type liquidateRequest struct {
	TargetRef    string `json:"target_ref" validate:"required,uuid"`
	LiquidatedBy string `json:"liquidated_by" validate:"required,uuid"`
	Reason       string `json:"reason" validate:"required,min=20,max=500"`
	Force        bool   `json:"force"`
}

func (h *Handler) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	targetRef, err := uuid.Parse(req.TargetRef)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid target_ref")
		return
	}
	liquidatorRef, err := uuid.Parse(req.LiquidatedBy)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid liquidated_by")
		return
	}
	result, err := h.engine.Liquidate(r.Context(), targetRef, liquidatorRef, req.Reason, req.Force)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) handleCapacity(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Capacity(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, report)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	var ae *agierr.Error
	if errors.As(err, &ae) {
		httpserver.RespondError(w, agierr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
		return
	}
	h.logger.Error("lifecycle engine error", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
}
