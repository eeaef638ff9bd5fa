package principal

import (
	"strings"
	"testing"
	"time"
)

func TestSessionManager_IssueThenVerify_RoundTrips(t *testing.T) {
	sm, err := newSessionManager(strings.Repeat("a", 32), time.Hour)
	if err != nil {
		t.Fatalf("newSessionManager: %v", err)
	}

	token, expiresAt, err := sm.issue("alice", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("expected expiry in the future")
	}

	username, role, err := sm.verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if username != "alice" {
		t.Errorf("expected subject alice, got %s", username)
	}
	if role != RoleAdmin {
		t.Errorf("expected role admin, got %s", role)
	}
}

func TestSessionManager_Verify_RejectsWrongKey(t *testing.T) {
	sm1, _ := newSessionManager(strings.Repeat("a", 32), time.Hour)
	sm2, _ := newSessionManager(strings.Repeat("b", 32), time.Hour)

	token, _, err := sm1.issue("bob", RoleOperator)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, _, err := sm2.verify(token); err == nil {
		t.Fatal("expected verification with a different key to fail")
	}
}

func TestSessionManager_Verify_RejectsExpiredToken(t *testing.T) {
	sm, _ := newSessionManager(strings.Repeat("c", 32), -time.Minute)
	token, _, err := sm.issue("carol", RoleReadOnly)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, _, err := sm.verify(token); err == nil {
		t.Fatal("expected an expired token to fail verification")
	}
}

func TestNewSessionManager_RejectsShortSecret(t *testing.T) {
	if _, err := newSessionManager("too-short", time.Hour); err == nil {
		t.Fatal("expected a secret under 32 bytes to be rejected")
	}
}
