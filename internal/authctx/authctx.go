// Package authctx carries the authenticated caller through a request's
// context. It is deliberately small and dependency-free so both
// internal/httpserver (which enforces authentication) and pkg/principal
// (which performs it) can import it without a cycle.
package authctx

import "context"

// Method describes how the caller was authenticated.
const (
	MethodSession = "session" // human principal, cookie/bearer session token
	MethodAPIKey  = "apikey"  // service-to-service API key, bound to an agent
	MethodDev     = "dev"     // unauthenticated dev fallback, local only
)

// Identity represents the authenticated caller for the current request: a
// human principal (dashboards) or a service client acting on behalf of an
// agent (another Agentium process, an external integration).
type Identity struct {
	Subject     string // principal username or "agent:<tier_id>"
	AgentTierID string // non-empty when this identity acts as a specific agent
	IsPrincipal bool   // true for a human dashboard operator
	Method      string
}

type ctxKey string

const identityKey ctxKey = "identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if unset.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}
