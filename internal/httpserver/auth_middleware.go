package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/neurotech-brt/agentium/internal/authctx"
)

// RequireAuth authenticates every request under its scope and rejects it
// with a stable permission_denied error tag (§7) if authentication fails.
func RequireAuth(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.Authenticate(r)
			if err != nil {
				logger.Warn("authentication failed", "error", err, "path", r.URL.Path)
				RespondError(w, http.StatusUnauthorized, "permission_denied", "authentication required")
				return
			}
			ctx := authctx.NewContext(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
