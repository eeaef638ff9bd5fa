// Package principal resolves the bearer credential on every request to an
// acting agent or human principal role (§6: "each endpoint authenticates via
// a bearer credential resolved to an acting agent or principal role"). It
// issues self-signed session tokens for POST /auth/login and hashed service
// keys for agent-bound, service-to-service calls.
package principal

import (
	"time"

	"github.com/google/uuid"
)

// Role is a human principal's authority level, distinct from an agent's
// identity.Tier — principals operate the dashboard/API, agents are governed
// by the constitution.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "read_only"
)

// Principal is a human operator account.
type Principal struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued session token, shaped after the teacher's
// LoginResponse (token + public user info).
type LoginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
}
