package provider

import (
	"testing"
	"time"
)

func TestKey_IsHealthy(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		key  Key
		want bool
	}{
		{"active, under budget", Key{Status: StatusActive, MonthlyBudget: 100, CurrentSpend: 10}, true},
		{"in cooldown", Key{Status: StatusActive, CooldownUntil: &future}, false},
		{"cooldown expired", Key{Status: StatusActive, CooldownUntil: &past}, true},
		{"error status", Key{Status: StatusError}, false},
		{"exhausted status", Key{Status: StatusExhausted}, false},
		{"over budget", Key{Status: StatusActive, MonthlyBudget: 100, CurrentSpend: 95}, false},
		{"unlimited budget", Key{Status: StatusActive, MonthlyBudget: 0, CurrentSpend: 1000000}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.IsHealthy(now, 10); got != tt.want {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaterialCipher_RoundTrips(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := NewMaterialCipher(key)
	if err != nil {
		t.Fatalf("NewMaterialCipher() error = %v", err)
	}

	sealed, err := c.Encrypt("sk-test-material")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if string(sealed) == "sk-test-material" {
		t.Fatal("Encrypt() returned plaintext")
	}

	plain, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plain != "sk-test-material" {
		t.Errorf("Decrypt() = %q, want %q", plain, "sk-test-material")
	}
}

func TestMaterialCipher_RejectsShortKey(t *testing.T) {
	if _, err := NewMaterialCipher([]byte("too-short")); err == nil {
		t.Error("expected error for non-32-byte key")
	}
}

func TestMonthChanged(t *testing.T) {
	reset := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"same month", time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), false},
		{"next month", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := monthChanged(reset, tt.now); got != tt.want {
				t.Errorf("monthChanged() = %v, want %v", got, tt.want)
			}
		})
	}
}
