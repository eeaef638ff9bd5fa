package principal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// AgentKeyHandler provides HTTP handlers for issuing and revoking agent
// service keys, mounted under the authenticated API router.
type AgentKeyHandler struct {
	keys   *AgentKeyStore
	audit  *audit.Writer
	logger *slog.Logger
}

// NewAgentKeyHandler creates an AgentKeyHandler.
func NewAgentKeyHandler(keys *AgentKeyStore, auditWriter *audit.Writer, logger *slog.Logger) *AgentKeyHandler {
	return &AgentKeyHandler{keys: keys, audit: auditWriter, logger: logger}
}

// Routes returns a chi.Router with the agent key routes mounted.
func (h *AgentKeyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Delete("/{id}", h.handleDelete)
	return r
}

type createAgentKeyRequest struct {
	AgentTierID string `json:"agent_tier_id" validate:"required"`
	Description string `json:"description" validate:"required"`
}

type createAgentKeyResponse struct {
	Response
	RawKey string `json:"raw_key"`
}

// Response is the JSON representation of an agent key, without its raw value.
type Response struct {
	ID          uuid.UUID `json:"id"`
	AgentTierID string    `json:"agent_tier_id"`
	KeyPrefix   string    `json:"key_prefix"`
	Description string    `json:"description"`
}

func (h *AgentKeyHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAgentKeyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	raw, key, err := h.keys.Create(r.Context(), req.AgentTierID, req.Description, nil)
	if err != nil {
		h.logger.Error("creating agent key", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to create agent key")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"agent_tier_id": req.AgentTierID})
		h.audit.LogFromRequest(r, "create", "agent_key", key.ID.String(), detail)
	}

	httpserver.Respond(w, http.StatusCreated, createAgentKeyResponse{
		Response: Response{ID: key.ID, AgentTierID: key.AgentTierID, KeyPrefix: key.KeyPrefix, Description: key.Description},
		RawKey:   raw,
	})
}

func (h *AgentKeyHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid key id")
		return
	}

	if err := h.keys.Delete(r.Context(), id); err != nil {
		var ae *agierr.Error
		if errors.As(err, &ae) {
			httpserver.RespondError(w, agierr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
			return
		}
		h.logger.Error("deleting agent key", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to delete agent key")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "agent_key", id.String(), nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
