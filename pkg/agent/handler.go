package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/agierr"
	"github.com/neurotech-brt/agentium/pkg/identity"
)

// Handler provides HTTP handlers for the agents API.
type Handler struct {
	store    *Store
	registry *identity.Registry
	logger   *slog.Logger
	audit    *audit.Writer
}

// NewHandler creates an agent Handler.
func NewHandler(store *Store, registry *identity.Registry, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{store: store, registry: registry, logger: logger, audit: auditWriter}
}

// Routes returns a chi.Router with all agent routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/capabilities", h.handleGetCapabilities)
		r.Post("/capabilities/grant", h.handleGrant)
		r.Post("/capabilities/revoke", h.handleRevoke)
		r.Get("/children", h.handleListChildren)
	})
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent id")
		return
	}

	a, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondStoreErr(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, a.ToResponse())
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tierParam := r.URL.Query().Get("tier")
	if tierParam == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "tier query parameter is required")
		return
	}

	agents, err := h.store.ListByTier(r.Context(), identity.Tier(tierParam), false)
	if err != nil {
		h.logger.Error("listing agents", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list agents")
		return
	}

	resp := make([]Response, len(agents))
	for i, a := range agents {
		resp[i] = a.ToResponse()
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleListChildren(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent id")
		return
	}

	children, err := h.store.ListChildren(r.Context(), id)
	if err != nil {
		h.logger.Error("listing agent children", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list children")
		return
	}

	resp := make([]Response, len(children))
	for i, a := range children {
		resp[i] = a.ToResponse()
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleGetCapabilities(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent id")
		return
	}

	a, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondStoreErr(w, err)
		return
	}

	effective := identity.EffectiveCapabilities(a.View())
	names := make([]string, 0, len(effective))
	for c := range effective {
		names = append(names, string(c))
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"tier_id":                a.TierID,
		"tier":                   a.Tier,
		"base_capabilities":      namesOf(identity.BaseCapabilities(a.Tier)),
		"granted_capabilities":   a.GrantedCaps,
		"revoked_capabilities":   a.RevokedCaps,
		"effective_capabilities": names,
	})
}

// capabilityMutationRequest is the JSON body for grant/revoke endpoints.
type capabilityMutationRequest struct {
	Capability string `json:"capability" validate:"required"`
	GrantorID  string `json:"grantor_id" validate:"required,uuid"`
	Reason     string `json:"reason" validate:"required"`
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	h.mutateCapability(w, r, true)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.mutateCapability(w, r, false)
}

func (h *Handler) mutateCapability(w http.ResponseWriter, r *http.Request, grant bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent id")
		return
	}

	var req capabilityMutationRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	grantorID, err := uuid.Parse(req.GrantorID)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid grantor_id")
		return
	}

	target, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondStoreErr(w, err)
		return
	}
	grantor, err := h.store.Get(r.Context(), grantorID)
	if err != nil {
		h.respondStoreErr(w, err)
		return
	}

	var caps identity.CapabilitySet
	if grant {
		caps, err = h.registry.Grant(r.Context(), target.View(), grantor.View(), identity.Capability(req.Capability), req.Reason)
	} else {
		caps, err = h.registry.Revoke(r.Context(), target.View(), grantor.View(), identity.Capability(req.Capability), req.Reason)
	}
	if err != nil {
		h.respondStoreErr(w, err)
		return
	}

	if err := h.store.UpdateCapabilities(r.Context(), id, caps); err != nil {
		h.logger.Error("persisting capability mutation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to persist capability change")
		return
	}

	if h.audit != nil {
		action := "capability_granted"
		if !grant {
			action = "capability_revoked"
		}
		detail, _ := json.Marshal(map[string]string{"capability": req.Capability, "reason": req.Reason})
		h.audit.LogFromRequest(r, action, "agent", target.TierID, detail)
	}

	a, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondStoreErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, a.ToResponse())
}

func (h *Handler) respondStoreErr(w http.ResponseWriter, err error) {
	var ae *agierr.Error
	if errors.As(err, &ae) {
		httpserver.RespondError(w, agierr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
		return
	}
	if errors.Is(err, pgx.ErrNoRows) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "agent not found")
		return
	}
	h.logger.Error("agent store error", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
}

func namesOf(caps []identity.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}
