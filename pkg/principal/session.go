package principal

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const issuer = "agentium"

// GenerateDevSecret returns a random 32-byte hex-encoded secret for local
// development, when AGENTIUM_SESSION_SECRET is left unset. Never used when
// devMode is false — a missing secret in that case is a startup error.
func GenerateDevSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating dev session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// sessionClaims are the custom claims embedded in a self-issued session
// token, alongside the registered jwt.Claims.
type sessionClaims struct {
	Role Role `json:"role"`
}

// sessionManager issues and validates self-signed session JWTs using
// HMAC-SHA256, the same shape as the teacher's SessionManager.
type sessionManager struct {
	signingKey []byte
	maxAge     time.Duration
}

func newSessionManager(secret string, maxAge time.Duration) (*sessionManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	return &sessionManager{signingKey: []byte(secret), maxAge: maxAge}, nil
}

// issue creates a signed JWT carrying subject (username) and role.
func (sm *sessionManager) issue(username string, role Role) (token string, expiresAt time.Time, err error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: sm.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	expiresAt = now.Add(sm.maxAge)
	registered := jwt.Claims{
		Subject:   username,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(expiresAt),
	}

	token, err = jwt.Signed(signer).Claims(registered).Claims(sessionClaims{Role: role}).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return token, expiresAt, nil
}

// verify validates the token's signature and expiry, returning the subject
// (username) and role it carries.
func (sm *sessionManager) verify(raw string) (username string, role Role, err error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", "", fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var custom sessionClaims
	if err := tok.Claims(sm.signingKey, &registered, &custom); err != nil {
		return "", "", fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{Issuer: issuer, Time: time.Now()}, 5*time.Second); err != nil {
		return "", "", fmt.Errorf("validating claims: %w", err)
	}

	return registered.Subject, custom.Role, nil
}
