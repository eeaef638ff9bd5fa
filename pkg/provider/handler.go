package provider

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Handler provides HTTP handlers for the provider key API.
type Handler struct {
	store   *Store
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a provider Handler.
func NewHandler(store *Store, manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{store: store, manager: manager, logger: logger}
}

// Routes returns a chi.Router with all provider key routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListByKind)
	r.Post("/", h.handleRegister)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/test", h.handleTest)
		r.Get("/models", h.handleFetchModels)
		r.Post("/rotate", h.handleRotate)
		r.Delete("/", h.handleDelete)
	})
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid key id")
		return
	}
	k, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, k.ToResponse())
}

func (h *Handler) handleListByKind(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("provider_kind")
	if kind == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "provider_kind query parameter is required")
		return
	}
	keys, err := h.store.ActiveByKind(r.Context(), Kind(kind))
	if err != nil {
		h.logger.Error("listing provider keys", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list provider keys")
		return
	}
	resp := make([]Response, len(keys))
	for i, k := range keys {
		resp[i] = k.ToResponse()
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

// registerRequest is the JSON body for registering a new provider key.
type registerRequest struct {
	ProviderKind  string  `json:"provider_kind" validate:"required"`
	RawMaterial   string  `json:"raw_material" validate:"required"`
	BaseURL       string  `json:"base_url"`
	DefaultModel  string  `json:"default_model" validate:"required"`
	Priority      int     `json:"priority" validate:"required,min=1"`
	MonthlyBudget float64 `json:"monthly_budget"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	k, err := h.manager.RegisterKey(r.Context(), Kind(req.ProviderKind), req.RawMaterial, req.BaseURL, req.DefaultModel, req.Priority, req.MonthlyBudget)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, k.ToResponse())
}

func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid key id")
		return
	}
	if err := h.manager.TestKey(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleFetchModels(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid key id")
		return
	}
	models, err := h.manager.FetchModels(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"models": models})
}

// rotateRequest is the JSON body for rotating a provider key.
type rotateRequest struct {
	RawMaterial   string  `json:"raw_material" validate:"required"`
	BaseURL       string  `json:"base_url"`
	DefaultModel  string  `json:"default_model" validate:"required"`
	MonthlyBudget float64 `json:"monthly_budget"`
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid key id")
		return
	}
	var req rotateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	old, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	next, err := h.manager.RotateKey(r.Context(), old, req.RawMaterial, req.BaseURL, req.DefaultModel, req.MonthlyBudget)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, next.ToResponse())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid key id")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("deleting provider key", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to delete provider key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	var ae *agierr.Error
	if errors.As(err, &ae) {
		httpserver.RespondError(w, agierr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
		return
	}
	h.logger.Error("provider key error", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
}
