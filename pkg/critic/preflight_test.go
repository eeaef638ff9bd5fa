package critic

import (
	"strings"
	"testing"
)

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"run", "the", "tests"}, []string{"run", "the", "tests"}, 1.0},
		{"disjoint", []string{"run", "tests"}, []string{"deploy", "service"}, 0.0},
		{"empty a", nil, []string{"x"}, 0.0},
		{"empty both", nil, nil, 0.0},
		{"partial overlap", []string{"run", "the", "tests"}, []string{"run", "the", "build"}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jaccardSimilarity(tt.a, tt.b); got != tt.want {
				t.Errorf("jaccardSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestReviewCode_DangerousPatterns(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Verdict
	}{
		{"eval call", `result = eval(user_input)`, VerdictReject},
		{"rm -rf", "run: rm -rf /data", VerdictReject},
		{"sql injection marker", "SELECT * FROM users; --", VerdictReject},
		{"clean code", "func Add(a, b int) int { return a + b }", VerdictPass},
		{"empty", "", VerdictReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, reason, _ := reviewCode(tt.content)
			if v != tt.want {
				t.Errorf("reviewCode(%q) verdict = %v (%s), want %v", tt.content, v, reason, tt.want)
			}
		})
	}
}

func TestReviewCode_GoPanicTraceback(t *testing.T) {
	content := "panic: runtime error: index out of range\n\ngoroutine 1 [running]:"
	v, reason, _ := reviewCode(content)
	if v != VerdictReject {
		t.Fatalf("reviewCode() verdict = %v, want reject", v)
	}
	if !strings.Contains(reason, "panic") {
		t.Errorf("reviewCode() reason = %q, want mention of panic", reason)
	}
}

func TestReviewOutput_EmptyAndErrorTraceback(t *testing.T) {
	v, _, _ := reviewOutput("", "summarize the log file")
	if v != VerdictReject {
		t.Errorf("empty output verdict = %v, want reject", v)
	}

	tracebackOutput := "Traceback (most recent call last):\n  File x\nException: boom\nError: failed"
	v, _, _ = reviewOutput(tracebackOutput, "")
	if v != VerdictReject {
		t.Errorf("traceback output verdict = %v, want reject", v)
	}

	v, _, _ = reviewOutput("The deployment completed successfully with 12 services healthy.", "")
	if v != VerdictPass {
		t.Errorf("normal output verdict = %v, want pass", v)
	}
}

func TestReviewOutput_RelevanceMismatch(t *testing.T) {
	task := "analyze the quarterly revenue spreadsheet and report anomalies in expense categories"
	offTopic := "Here is a haiku about autumn leaves falling gently through a quiet forest breeze today"
	v, reason, _ := reviewOutput(offTopic, task)
	if v != VerdictReject {
		t.Fatalf("reviewOutput() verdict = %v, want reject; reason=%s", v, reason)
	}
}

func TestReviewPlan_DuplicateSteps(t *testing.T) {
	plan := "1. fetch the user record from the database\n2. fetch the user record from the database again\n3. send confirmation email"
	v, reason, _ := reviewPlan(plan)
	if v != VerdictReject {
		t.Fatalf("reviewPlan() verdict = %v, want reject", v)
	}
	if !strings.Contains(reason, "duplicate") {
		t.Errorf("reviewPlan() reason = %q, want mention of duplicate", reason)
	}
}

func TestReviewPlan_TooManySteps(t *testing.T) {
	lines := make([]string, maxPlanSteps+1)
	for i := range lines {
		lines[i] = "step number for unique action performed here"
		// the suffix cycles every 26 lines, so some lines repeat and the
		// duplicate detector trips too; only the step-count reason is checked
		lines[i] = lines[i] + " " + string(rune('a'+i%26))
	}
	plan := strings.Join(lines, "\n")
	v, reason, _ := reviewPlan(plan)
	if v != VerdictReject {
		t.Fatalf("reviewPlan() verdict = %v, want reject", v)
	}
	if !strings.Contains(reason, "steps") {
		t.Errorf("reviewPlan() reason = %q, want mention of step count", reason)
	}
}

func TestReviewPlan_CleanPlanPasses(t *testing.T) {
	plan := "1. create the database migration\n2. run the migration against staging\n3. verify row counts match"
	v, _, _ := reviewPlan(plan)
	if v != VerdictPass {
		t.Errorf("reviewPlan() verdict = %v, want pass", v)
	}
}
