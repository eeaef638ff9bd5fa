package amendment

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/httpserver"
	"github.com/neurotech-brt/agentium/pkg/agierr"
	"github.com/neurotech-brt/agentium/pkg/ethos"
)

// Handler provides HTTP handlers for the Amendment state machine API.
type Handler struct {
	engine *Engine
	store  *Store
	logger *slog.Logger
}

// NewHandler creates an amendment Handler.
func NewHandler(engine *Engine, store *Store, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, store: store, logger: logger}
}

// Routes returns a chi.Router with the amendment routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handlePropose)
	r.Get("/", h.handleHistory)
	r.Get("/{amendmentID}", h.handleGet)
	r.Post("/{amendmentID}/sponsor", h.handleSponsor)
	r.Post("/{amendmentID}/start-voting", h.handleStartVoting)
	r.Post("/{amendmentID}/votes", h.handleCastVote)
	r.Post("/{amendmentID}/conclude", h.handleConclude)
	r.Post("/{amendmentID}/withdraw", h.handleWithdraw)
	return r
}

type proposeRequest struct {
	ProposerRef          string                 `json:"proposer_ref" validate:"required,uuid"`
	Title                string                 `json:"title" validate:"required,min=3"`
	Rationale            string                 `json:"rationale" validate:"required"`
	ProposedArticles     map[int]ethos.Article  `json:"proposed_articles"`
	ProposedProhibitions []string               `json:"proposed_prohibitions"`
	ProposedSovereignPreferences []string       `json:"proposed_sovereign_preferences"`
	DebateWindowHours    int                    `json:"debate_window_hours,omitempty"`
	VotingWindowHours    int                    `json:"voting_window_hours,omitempty"`
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	proposerRef, err := uuid.Parse(req.ProposerRef)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid proposer_ref")
		return
	}

	a, err := h.engine.Propose(r.Context(), ProposeParams{
		ProposerRef: proposerRef, Title: req.Title, Rationale: req.Rationale,
		ProposedArticles: req.ProposedArticles, ProposedProhibitions: req.ProposedProhibitions,
		ProposedSovereignPreferences: req.ProposedSovereignPreferences,
		DebateWindow:                 time.Duration(req.DebateWindowHours) * time.Hour,
		VotingWindow:                 time.Duration(req.VotingWindowHours) * time.Hour,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, a.ToResponse())
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.ListHistory(r.Context(), 50)
	if err != nil {
		h.logger.Error("listing amendment history", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list amendments")
		return
	}
	resp := make([]Response, len(history))
	for i, a := range history {
		resp[i] = a.ToResponse()
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid amendment id")
		return
	}
	a, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, a.ToResponse())
}

type sponsorRequest struct {
	SponsorRef string `json:"sponsor_ref" validate:"required,uuid"`
}

func (h *Handler) handleSponsor(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid amendment id")
		return
	}
	var req sponsorRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	sponsorRef, err := uuid.Parse(req.SponsorRef)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid sponsor_ref")
		return
	}
	a, err := h.engine.Sponsor(r.Context(), id, sponsorRef)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, a.ToResponse())
}

func (h *Handler) handleStartVoting(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid amendment id")
		return
	}
	a, err := h.engine.AdvanceToVoting(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, a.ToResponse())
}

type castVoteRequest struct {
	VoterRef  string `json:"voter_ref" validate:"required,uuid"`
	Vote      string `json:"vote" validate:"required,oneof=FOR AGAINST ABSTAIN"`
	Rationale string `json:"rationale,omitempty"`
}

func (h *Handler) handleCastVote(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid amendment id")
		return
	}
	var req castVoteRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	voterRef, err := uuid.Parse(req.VoterRef)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid voter_ref")
		return
	}
	a, err := h.engine.CastVote(r.Context(), id, voterRef, Vote(req.Vote), req.Rationale)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, a.ToResponse())
}

func (h *Handler) handleConclude(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid amendment id")
		return
	}
	a, err := h.engine.Conclude(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, a.ToResponse())
}

type withdrawRequest struct {
	ByRef string `json:"by_ref" validate:"required,uuid"`
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := h.parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid amendment id")
		return
	}
	var req withdrawRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	byRef, err := uuid.Parse(req.ByRef)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_failed", "invalid by_ref")
		return
	}
	a, err := h.engine.Withdraw(r.Context(), id, byRef)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, a.ToResponse())
}

func (h *Handler) parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "amendmentID"))
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	var ae *agierr.Error
	if errors.As(err, &ae) {
		httpserver.RespondError(w, agierr.HTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
		return
	}
	h.logger.Error("amendment engine error", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
}
