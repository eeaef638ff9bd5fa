package modeladapter

import (
	"testing"

	"github.com/neurotech-brt/agentium/pkg/provider"
)

func TestDispatcherFor(t *testing.T) {
	tests := []struct {
		kind provider.Kind
		want dispatcher
	}{
		{provider.KindAnthropic, anthropicDispatcher{}},
		{provider.KindOllama, localDispatcher{}},
		{provider.KindLMStudio, localDispatcher{}},
		{provider.KindOpenAI, openAICompatibleDispatcher{}},
		{provider.KindAzureOpenAI, openAICompatibleDispatcher{}},
		{provider.KindCustom, openAICompatibleDispatcher{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got := dispatcherFor(tt.kind)
			if got != tt.want {
				t.Errorf("dispatcherFor(%v) = %T, want %T", tt.kind, got, tt.want)
			}
		})
	}
}

func TestConcatenatePrompt(t *testing.T) {
	tests := []struct {
		name    string
		system  string
		user    string
		want    string
	}{
		{"both present", "system rules", "do the thing", "system rules\n\ndo the thing"},
		{"empty system", "", "do the thing", "do the thing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := concatenatePrompt(tt.system, tt.user); got != tt.want {
				t.Errorf("concatenatePrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRateLimitErr(t *testing.T) {
	rateLimited := &statusError{StatusCode: 429}
	notRateLimited := &statusError{StatusCode: 500}

	if !isRateLimitErr(rateLimited) {
		t.Error("expected 429 to be classified as rate limited")
	}
	if isRateLimitErr(notRateLimited) {
		t.Error("expected 500 to not be classified as rate limited")
	}
	if isRateLimitErr(nil) {
		t.Error("expected nil error to not be classified as rate limited")
	}
}
