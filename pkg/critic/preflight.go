package critic

import (
	"fmt"
	"regexp"
	"strings"
)

// maxOutputChars bounds raw output size — beyond this a REJECT is raised
// rather than letting an unbounded generation reach the AI review stage.
const maxOutputChars = 100000

// maxPlanSteps bounds a PLAN specialty review's step count (§4.5 preflight,
// "achievability within reasonable scope").
const maxPlanSteps = 100

// duplicateStepJaccardThreshold is how similar two plan step lines' word
// sets must be (intersection over union) to be treated as duplicates — a
// generalization of the source's exact-line-match check to catch
// near-identical reworded steps.
const duplicateStepJaccardThreshold = 0.85

// relevanceMinOverlap is the minimum fraction of a task description's
// keywords that must reappear in an OUTPUT review's content for the output
// to be considered on-topic.
const relevanceMinOverlap = 0.05

// dangerousPatterns are literal substrings a CODE review rejects outright —
// ported from the source's security deny-list.
var dangerousPatterns = []string{
	"eval(", "exec(", "__import__", "os.system(", "subprocess.Popen(",
	"rm -rf", "DROP TABLE", "DELETE FROM", "; --",
}

// errorIndicators mark an OUTPUT review's content as looking like an error
// dump rather than a real result. Two or more hits trip the check.
var errorIndicators = []string{
	"Traceback (most recent call last)", "Error:", "Exception:",
}

var goPanicPattern = regexp.MustCompile(`(?m)^panic: |goroutine \d+ \[`)

// stepMarkerPattern matches a leading list marker ("1.", "2)", "-", "*") on a
// plan step; it is dropped before steps are compared for duplicates.
var stepMarkerPattern = regexp.MustCompile(`^(\d+[.)]?|[-*])$`)

// preflightCheck runs the deterministic, no-external-call rule checks for a
// given specialty (§4.5 stage 1). A REJECT verdict here skips the AI review
// stage entirely.
func preflightCheck(specialty Specialty, content, taskDescription string) (Verdict, string, string) {
	switch specialty {
	case SpecialtyCode:
		return reviewCode(content)
	case SpecialtyOutput:
		return reviewOutput(content, taskDescription)
	case SpecialtyPlan:
		return reviewPlan(content)
	default:
		return VerdictPass, "", ""
	}
}

func reviewCode(content string) (Verdict, string, string) {
	var issues, suggestions []string

	for _, pattern := range dangerousPatterns {
		if strings.Contains(content, pattern) {
			issues = append(issues, fmt.Sprintf("dangerous pattern detected: %q", pattern))
			suggestions = append(suggestions, fmt.Sprintf("remove or sandbox usage of %q", pattern))
		}
	}
	if goPanicPattern.MatchString(content) {
		issues = append(issues, "output contains an unrecovered panic or goroutine traceback")
		suggestions = append(suggestions, "fix the panic before resubmitting")
	}

	if strings.TrimSpace(content) == "" {
		issues = append(issues, "empty output")
	}
	if len(content) > maxOutputChars {
		issues = append(issues, "output exceeds 100K chars — may indicate unbounded generation")
		suggestions = append(suggestions, "add output length constraints")
	}

	if len(issues) > 0 {
		return VerdictReject, strings.Join(issues, "; "), joinOrEmpty(suggestions)
	}
	return VerdictPass, "", ""
}

func reviewOutput(content, taskDescription string) (Verdict, string, string) {
	var issues, suggestions []string

	if strings.TrimSpace(content) == "" {
		issues = append(issues, "output is empty — does not fulfill any user intent")
		suggestions = append(suggestions, "ensure the executor produces meaningful output")
	}

	errorCount := 0
	for _, indicator := range errorIndicators {
		if strings.Contains(content, indicator) {
			errorCount++
		}
	}
	if errorCount >= 2 {
		issues = append(issues, "output appears to be an error traceback, not a valid result")
		suggestions = append(suggestions, "fix the underlying error before resubmitting")
	}

	if taskDescription != "" {
		taskKeywords := wordSet(taskDescription)
		outputKeywords := wordSet(firstNWords(content, 200))
		if len(taskKeywords) > 5 {
			overlap := intersectionSize(taskKeywords, outputKeywords)
			relevance := float64(overlap) / float64(len(taskKeywords))
			if relevance < relevanceMinOverlap {
				issues = append(issues, "output appears unrelated to the task description")
				suggestions = append(suggestions, "ensure output addresses the task requirements")
			}
		}
	}

	if len(issues) > 0 {
		return VerdictReject, strings.Join(issues, "; "), joinOrEmpty(suggestions)
	}
	return VerdictPass, "", ""
}

func reviewPlan(content string) (Verdict, string, string) {
	var issues, suggestions []string

	if strings.TrimSpace(content) == "" {
		issues = append(issues, "execution plan is empty")
		suggestions = append(suggestions, "generate a valid plan with at least one step")
	}

	lines := strings.Split(content, "\n")
	var seen [][]string
	for _, line := range lines {
		stripped := strings.TrimSpace(strings.ToLower(line))
		if stripped == "" {
			continue
		}
		words := strings.Fields(stripped)
		if len(words) > 1 && stepMarkerPattern.MatchString(words[0]) {
			words = words[1:]
		}
		for _, prior := range seen {
			if jaccardSimilarity(words, prior) >= duplicateStepJaccardThreshold {
				issues = append(issues, fmt.Sprintf("duplicate step detected: %q", truncate(stripped, 50)))
				suggestions = append(suggestions, "remove duplicate steps from the plan")
				break
			}
		}
		seen = append(seen, words)
	}

	if len(lines) > maxPlanSteps {
		issues = append(issues, fmt.Sprintf("plan has %d steps — may be over-engineered", len(lines)))
		suggestions = append(suggestions, "simplify the plan to fewer, higher-level steps")
	}

	if len(issues) > 0 {
		return VerdictReject, strings.Join(issues, "; "), joinOrEmpty(suggestions)
	}
	return VerdictPass, "", ""
}

func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}
	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}

func intersectionSize(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

func firstNWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func joinOrEmpty(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return strings.Join(items, "; ")
}
