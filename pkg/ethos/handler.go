package ethos

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Handler provides HTTP handlers for the constitution and ethos APIs.
type Handler struct {
	store  *Store
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates an ethos Handler.
func NewHandler(store *Store, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{store: store, logger: logger, audit: auditWriter}
}

// Routes returns a chi.Router with all constitution and ethos routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/constitution", h.handleGetActiveConstitution)
	r.Get("/constitution/{version}", h.handleGetConstitutionVersion)
	r.Post("/constitution/activate", h.handleActivateConstitution)

	r.Route("/agents/{agentID}/ethos", func(r chi.Router) {
		r.Get("/", h.handleReadEthos)
		r.Post("/plan", h.handleSetActivePlan)
		r.Post("/constitutional-references", h.handleSetConstitutionalReferences)
		r.Post("/lessons-learned", h.handleAddLessonLearned)
		r.Post("/compress", h.handleCompress)
	})
	return r
}

func (h *Handler) handleGetActiveConstitution(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.LoadActive(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, c.ToResponse())
}

func (h *Handler) handleGetConstitutionVersion(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	c, err := h.store.GetVersion(r.Context(), version)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, c.ToResponse())
}

// activateConstitutionRequest is the JSON body for constitution activation.
type activateConstitutionRequest struct {
	Version              string           `json:"version" validate:"required"`
	VersionNumber        int              `json:"version_number" validate:"required"`
	Preamble             string           `json:"preamble" validate:"required"`
	Articles             map[int]Article  `json:"articles" validate:"required"`
	Prohibitions         []string         `json:"prohibitions"`
	SovereignPreferences []string         `json:"sovereign_preferences"`
	RatifiedByAmendment  string           `json:"ratified_by_amendment_ref,omitempty" validate:"omitempty,uuid"`
}

func (h *Handler) handleActivateConstitution(w http.ResponseWriter, r *http.Request) {
	var req activateConstitutionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	prior, err := h.store.LoadActive(r.Context())
	var replaces *uuid.UUID
	if err == nil {
		replaces = &prior.ID
	} else if agierr.KindOf(err) != agierr.KindNotFound {
		h.respondErr(w, err)
		return
	}

	var ratifiedBy *uuid.UUID
	if req.RatifiedByAmendment != "" {
		id, err := uuid.Parse(req.RatifiedByAmendment)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid ratified_by_amendment_ref")
			return
		}
		ratifiedBy = &id
	}

	next := Constitution{
		Version:                req.Version,
		VersionNumber:          req.VersionNumber,
		Preamble:               req.Preamble,
		Articles:               req.Articles,
		Prohibitions:           req.Prohibitions,
		SovereignPreferences:   req.SovereignPreferences,
		EffectiveDate:          time.Now().UTC(),
		ReplacesVersionRef:     replaces,
		RatifiedByAmendmentRef: ratifiedBy,
	}

	activated, err := h.store.Activate(r.Context(), h.store.dbtx, next)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"version": activated.Version})
		h.audit.LogFromRequest(r, "constitution_activated", "constitution", activated.ID.String(), detail)
	}

	httpserver.Respond(w, http.StatusCreated, activated.ToResponse())
}

func (h *Handler) handleReadEthos(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent id")
		return
	}

	e, err := h.store.Read(r.Context(), agentID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, e.ToResponse())
}

// setActivePlanRequest is the JSON body for replacing an agent's active plan.
type setActivePlanRequest struct {
	Plan []PlanStep `json:"plan" validate:"required"`
}

func (h *Handler) handleSetActivePlan(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent id")
		return
	}

	var req setActivePlanRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	e, err := h.store.SetActivePlan(r.Context(), agentID, req.Plan)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, e.ToResponse())
}

// setConstitutionalReferencesRequest is the JSON body for replacing an
// agent's constitutional references.
type setConstitutionalReferencesRequest struct {
	References []string `json:"references" validate:"required"`
}

func (h *Handler) handleSetConstitutionalReferences(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent id")
		return
	}

	var req setConstitutionalReferencesRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	e, err := h.store.SetConstitutionalReferences(r.Context(), agentID, req.References)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, e.ToResponse())
}

// addLessonLearnedRequest is the JSON body for appending a lesson learned.
type addLessonLearnedRequest struct {
	Lesson string `json:"lesson" validate:"required"`
}

func (h *Handler) handleAddLessonLearned(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent id")
		return
	}

	var req addLessonLearnedRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	e, err := h.store.AddLessonLearned(r.Context(), agentID, req.Lesson)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, e.ToResponse())
}

func (h *Handler) handleCompress(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid agent id")
		return
	}

	e, err := h.store.Compress(r.Context(), agentID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "ethos_compressed", "agent", agentID.String(), nil)
	}

	httpserver.Respond(w, http.StatusOK, e.ToResponse())
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	var ae *agierr.Error
	if errors.As(err, &ae) {
		httpserver.RespondError(w, agierr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
		return
	}
	if errors.Is(err, pgx.ErrNoRows) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	h.logger.Error("ethos store error", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
}
