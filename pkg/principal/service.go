package principal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/internal/authctx"
)

// devHeader enables the dev-mode fallback: a request carrying this header
// authenticates with no real credential as the "dev:anonymous" principal,
// honored only when the Service's devMode field is true.
const devHeader = "X-Agentium-Dev"

// Service resolves bearer credentials (session tokens, agent keys, the dev
// fallback) and issues session tokens on login. It implements
// httpserver.Authenticator.
type Service struct {
	principals *Store
	agentKeys  *AgentKeyStore
	sessions   *sessionManager
	audit      *audit.Writer
	devMode    bool
	logger     *slog.Logger
}

// NewService creates a principal Service. sessionSecret must be at least 32
// bytes; devMode should only be true for local development.
func NewService(principals *Store, agentKeys *AgentKeyStore, sessionSecret string, sessionMaxAge time.Duration, devMode bool, auditWriter *audit.Writer, logger *slog.Logger) (*Service, error) {
	sm, err := newSessionManager(sessionSecret, sessionMaxAge)
	if err != nil {
		return nil, fmt.Errorf("constructing principal service: %w", err)
	}
	return &Service{
		principals: principals,
		agentKeys:  agentKeys,
		sessions:   sm,
		audit:      auditWriter,
		devMode:    devMode,
		logger:     logger,
	}, nil
}

// ErrInvalidCredentials is returned by Login for any credential failure —
// unknown username or wrong password are indistinguishable to the caller,
// matching the teacher's login handler (both collapse to one 401).
var ErrInvalidCredentials = errors.New("invalid username or password")

// Login verifies a username/password pair and issues a signed session token
// carrying subject and role (§6 "/auth login(username, password)"). Failure
// is audit-logged regardless of cause, matching the teacher's login handler.
// This is a credential check, not a capability check, so it deliberately
// does not go through agierr's PermissionDenied kind (§7) — that kind
// carries a RequiredTier hint that has no meaning here.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	p, err := s.principals.GetByUsername(ctx, username)
	if err != nil {
		s.logAuditFailure(username, "principal not found")
		return LoginResponse{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		s.logAuditFailure(username, "password mismatch")
		return LoginResponse{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.sessions.issue(p.Username, p.Role)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("issuing session token: %w", err)
	}

	if s.audit != nil {
		s.audit.Log(audit.Entry{
			Level:      audit.LevelInfo,
			ActorType:  "principal",
			ActorID:    p.Username,
			Action:     "login",
			TargetType: "principal",
			TargetID:   p.ID.String(),
		})
	}

	return LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		Username:  p.Username,
		Role:      p.Role,
	}, nil
}

// VerifyToken validates a raw session token outside the normal HTTP request
// path, used by the /sovereign/ws upgrade handler (§6) where a browser
// WebSocket client cannot set an Authorization header and instead passes the
// token as a query parameter.
func (s *Service) VerifyToken(raw string) (username string, role Role, err error) {
	return s.sessions.verify(raw)
}

// Authenticate implements httpserver.Authenticator: session JWT first, then
// an agent service key, then the dev fallback — the teacher's middleware
// precedence, minus the OIDC/PAT legs this deployment doesn't carry.
func (s *Service) Authenticate(r *http.Request) (*authctx.Identity, error) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		username, role, err := s.sessions.verify(raw)
		if err != nil {
			return nil, fmt.Errorf("session token: %w", err)
		}
		if err := roleCheck(role); err != nil {
			return nil, err
		}
		return &authctx.Identity{
			Subject:     username,
			IsPrincipal: true,
			Method:      authctx.MethodSession,
		}, nil
	}

	if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
		return s.authenticateAgentKey(r.Context(), rawKey)
	}

	if s.devMode {
		if v := r.Header.Get(devHeader); v != "" {
			return &authctx.Identity{
				Subject:     "dev:anonymous",
				IsPrincipal: true,
				Method:      authctx.MethodDev,
			}, nil
		}
	}

	return nil, errors.New("no credential presented")
}

func (s *Service) authenticateAgentKey(ctx context.Context, rawKey string) (*authctx.Identity, error) {
	hash := hashAgentKey(rawKey)
	key, err := s.agentKeys.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("agent key: %w", err)
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, errors.New("agent key expired")
	}

	if err := s.agentKeys.TouchLastUsed(ctx, key.ID); err != nil {
		s.logger.Warn("recording agent key last use", "error", err, "key_id", key.ID)
	}

	return &authctx.Identity{
		Subject:     fmt.Sprintf("agent:%s", key.AgentTierID),
		AgentTierID: key.AgentTierID,
		IsPrincipal: false,
		Method:      authctx.MethodAPIKey,
	}, nil
}

func (s *Service) logAuditFailure(username, reason string) {
	if s.audit == nil {
		return
	}
	detail, _ := json.Marshal(map[string]string{"reason": reason})
	s.audit.Log(audit.Entry{
		Level:      audit.LevelWarning,
		ActorType:  "principal",
		ActorID:    username,
		Action:     "login_failed",
		TargetType: "principal",
		TargetID:   username,
		Detail:     detail,
	})
}

// roleCheck rejects an empty role, which would indicate a token signed
// before a role claim existed or corrupted in transit.
func roleCheck(role Role) error {
	if role == "" {
		return errors.New("session token missing role claim")
	}
	return nil
}

func hashAgentKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
