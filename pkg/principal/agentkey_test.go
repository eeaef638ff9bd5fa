package principal

import (
	"strings"
	"testing"
)

func TestGenerateAgentKey_PrefixAndHashConsistency(t *testing.T) {
	raw, hash, prefix := generateAgentKey()

	if !strings.HasPrefix(raw, agentKeyPrefix) {
		t.Errorf("expected raw key to start with %q, got %s", agentKeyPrefix, raw)
	}
	if !strings.HasPrefix(prefix, agentKeyPrefix) {
		t.Errorf("expected display prefix to start with %q, got %s", agentKeyPrefix, prefix)
	}
	if hashAgentKey(raw) != hash {
		t.Error("expected hashAgentKey(raw) to match the hash returned at generation time")
	}
}

func TestGenerateAgentKey_Unique(t *testing.T) {
	raw1, _, _ := generateAgentKey()
	raw2, _, _ := generateAgentKey()
	if raw1 == raw2 {
		t.Error("expected two generated keys to differ")
	}
}
