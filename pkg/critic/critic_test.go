package critic

import (
	"log/slog"
	"testing"

	"github.com/neurotech-brt/agentium/pkg/provider"
)

func TestProfile_RecordReview_RollingAverage(t *testing.T) {
	p := Profile{}

	p.RecordReview(VerdictPass, 100)
	if p.ReviewsCompleted != 1 || p.PassesIssued != 1 || p.AvgReviewTimeMs != 100 {
		t.Fatalf("after first review: %+v", p)
	}

	p.RecordReview(VerdictReject, 300)
	if p.ReviewsCompleted != 2 || p.VetoesIssued != 1 {
		t.Fatalf("after second review: %+v", p)
	}
	if want := 200.0; p.AvgReviewTimeMs != want {
		t.Errorf("AvgReviewTimeMs = %v, want %v", p.AvgReviewTimeMs, want)
	}

	p.RecordReview(VerdictEscalate, 400)
	if p.ReviewsCompleted != 3 || p.EscalationsIssued != 1 {
		t.Fatalf("after third review: %+v", p)
	}
	if want := 800.0 / 3.0; p.AvgReviewTimeMs != want {
		t.Errorf("AvgReviewTimeMs = %v, want %v", p.AvgReviewTimeMs, want)
	}
}

func TestProfile_ApprovalAndVetoRates(t *testing.T) {
	p := Profile{ReviewsCompleted: 10, PassesIssued: 7, VetoesIssued: 3}
	if got := p.ApprovalRate(); got != 70 {
		t.Errorf("ApprovalRate() = %v, want 70", got)
	}
	if got := p.VetoRate(); got != 30 {
		t.Errorf("VetoRate() = %v, want 30", got)
	}

	empty := Profile{}
	if got := empty.ApprovalRate(); got != 0 {
		t.Errorf("ApprovalRate() on zero reviews = %v, want 0", got)
	}
}

func TestProfile_ReviewModel_FallsBackToDefault(t *testing.T) {
	p := Profile{}
	if got := p.ReviewModel(); got != DefaultReviewModel {
		t.Errorf("ReviewModel() = %q, want default %q", got, DefaultReviewModel)
	}

	p.PreferredReviewModel = "anthropic:claude-haiku"
	if got := p.ReviewModel(); got != "anthropic:claude-haiku" {
		t.Errorf("ReviewModel() = %q, want preferred model", got)
	}
}

func TestCritiqueReview_CanRetry(t *testing.T) {
	r := CritiqueReview{RetryCount: 4, MaxRetries: DefaultMaxRetries}
	if !r.CanRetry() {
		t.Error("CanRetry() = false, want true below max retries")
	}
	r.RetryCount = 5
	if r.CanRetry() {
		t.Error("CanRetry() = true, want false at max retries")
	}
}

func TestParseModelKey(t *testing.T) {
	tests := []struct {
		key        string
		wantKind   provider.Kind
		wantModel  string
	}{
		{"openai:gpt-4o-mini", provider.KindOpenAI, "gpt-4o-mini"},
		{"anthropic:claude-3-5-haiku", provider.Kind("anthropic"), "claude-3-5-haiku"},
		{"gpt-4o-mini", provider.KindOpenAI, "gpt-4o-mini"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			kind, model := parseModelKey(tt.key)
			if kind != tt.wantKind || model != tt.wantModel {
				t.Errorf("parseModelKey(%q) = (%v, %v), want (%v, %v)", tt.key, kind, model, tt.wantKind, tt.wantModel)
			}
		})
	}
}

func TestParseAIVerdict_ValidJSON(t *testing.T) {
	e := &Engine{logger: slog.Default()}
	raw := `{"verdict": "reject", "reason": "missing error handling", "suggestions": "wrap the call in a check"}`
	v, reason, suggestions := e.parseAIVerdict(raw)
	if v != VerdictReject {
		t.Errorf("verdict = %v, want reject", v)
	}
	if reason != "missing error handling" {
		t.Errorf("reason = %q", reason)
	}
	if suggestions != "wrap the call in a check" {
		t.Errorf("suggestions = %q", suggestions)
	}
}

func TestParseAIVerdict_MarkdownFenceStripped(t *testing.T) {
	e := &Engine{logger: slog.Default()}
	raw := "```json\n{\"verdict\": \"pass\", \"reason\": null, \"suggestions\": null}\n```"
	v, _, _ := e.parseAIVerdict(raw)
	if v != VerdictPass {
		t.Errorf("verdict = %v, want pass", v)
	}
}

func TestParseAIVerdict_NonJSONFallsBackToPass(t *testing.T) {
	e := &Engine{logger: slog.Default()}
	v, _, suggestions := e.parseAIVerdict("this is not json at all")
	if v != VerdictPass {
		t.Errorf("verdict = %v, want pass", v)
	}
	if suggestions == "" {
		t.Error("expected a non-empty fallback suggestion")
	}
}

func TestParseAIVerdict_CaseInsensitiveVerdict(t *testing.T) {
	e := &Engine{logger: slog.Default()}
	v, _, _ := e.parseAIVerdict(`{"verdict": "REJECT"}`)
	if v != VerdictReject {
		t.Errorf("verdict = %v, want reject", v)
	}
}
