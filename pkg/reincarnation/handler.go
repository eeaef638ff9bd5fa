package reincarnation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Handler provides HTTP handlers for the reincarnation cycle and its
// predecessor-context lookup.
type Handler struct {
	engine *Engine
	logger *slog.Logger
}

// NewHandler creates a reincarnation Handler.
func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Routes returns a chi.Router with the reincarnation routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/trigger", h.handleTrigger)
	r.Get("/predecessor/{agentRef}", h.handlePredecessorContext)
	return r
}

type triggerRequest struct {
	AgentRef    string `json:"agent_ref" validate:"required,uuid"`
	WorkContext string `json:"work_context"`
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	agentRef, err := uuid.Parse(req.AgentRef)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent_ref")
		return
	}
	result, err := h.engine.Reincarnate(r.Context(), agentRef, req.WorkContext)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) handlePredecessorContext(w http.ResponseWriter, r *http.Request) {
	agentRef, err := uuid.Parse(chi.URLParam(r, "agentRef"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent ref")
		return
	}
	view, err := h.engine.PredecessorContext(r.Context(), agentRef)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, view)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	var ae *agierr.Error
	if errors.As(err, &ae) {
		httpserver.RespondError(w, agierr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
		return
	}
	h.logger.Error("reincarnation engine error", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
}
