package principal

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neurotech-brt/agentium/internal/httpserver"
)

// Handler provides the unauthenticated /auth routes. Mounted outside the
// RequireAuth-guarded API router, since a caller with no credential yet must
// be able to reach it.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a principal auth Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with the /auth routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.handleLogin)
	return r
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		h.logger.Error("login", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}
