package critic

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/modeladapter"
	"github.com/neurotech-brt/agentium/pkg/provider"
)

// executeReview runs the two-stage review (§4.5): a deterministic preflight,
// then an AI model call using a model orthogonal to the executor's. An AI
// call failure falls back to the preflight result rather than blocking
// execution.
func (e *Engine) executeReview(ctx context.Context, criticID uuid.UUID, profile Profile, specialty Specialty, taskDescription, content string) (Verdict, string, string) {
	verdict, reason, suggestions := preflightCheck(specialty, content, taskDescription)
	if verdict == VerdictReject {
		return verdict, reason, suggestions
	}

	kind, model := parseModelKey(profile.ReviewModel())
	systemPrompt := criticSystemPrompt(specialty)
	userPrompt := criticUserPrompt(specialty, taskDescription, content)

	result, err := e.adapter.Generate(ctx, kind, nil, systemPrompt, userPrompt, modeladapter.GenerateOptions{
		Model: model, MaxTokens: 512, Temperature: 0.1,
	})
	if err != nil {
		e.logger.Warn("AI review failed, falling back to rule-based result", "error", err, "specialty", specialty)
		return preflightCheck(specialty, content, taskDescription)
	}
	if tokenErr := e.agents.IncrementTokenCount(ctx, criticID, result.TokensUsed); tokenErr != nil {
		e.logger.Warn("recording critic token spend failed", "agent_id", criticID, "error", tokenErr)
	}

	return e.parseAIVerdict(result.Content)
}

// parseModelKey splits a "provider:model" key as stored in
// Profile.PreferredReviewModel. Keys without a colon default to OpenAI.
func parseModelKey(key string) (provider.Kind, string) {
	if idx := strings.Index(key, ":"); idx >= 0 {
		return provider.Kind(key[:idx]), key[idx+1:]
	}
	return provider.KindOpenAI, key
}

var criticRoleDescriptions = map[Specialty]string{
	SpecialtyCode: "You are a senior code reviewer with a security and correctness focus. " +
		"You never write code yourself — only evaluate what you are given.",
	SpecialtyOutput: "You are a quality assurance specialist. " +
		"Your job is to verify that an agent's output actually satisfies the user's intent.",
	SpecialtyPlan: "You are an execution plan auditor. " +
		"You verify that plans are sound, non-circular, and achievable.",
}

var criticEvaluationCriteria = map[Specialty]string{
	SpecialtyCode: "Evaluate for: syntax correctness, security (no eval/exec/shell injection), " +
		"logic soundness, and absence of obvious bugs.",
	SpecialtyOutput: "Evaluate whether the output meaningfully addresses the task description. " +
		"Reject if: empty, pure error traceback, or clearly off-topic.",
	SpecialtyPlan: "Evaluate the plan for: completeness, absence of circular steps, " +
		"and achievability within reasonable scope (< 100 steps).",
}

// criticSystemPrompt builds a tight system prompt that forces structured
// JSON output (§4.5 stage 2).
func criticSystemPrompt(specialty Specialty) string {
	return criticRoleDescriptions[specialty] + "\n\n" +
		"Respond ONLY with a JSON object — no markdown, no preamble:\n" +
		`{"verdict": "pass" | "reject", "reason": "<one concise sentence, null if pass>", ` +
		`"suggestions": "<one actionable fix, null if pass>"}`
}

const maxReviewContentChars = 6000

func criticUserPrompt(specialty Specialty, taskDescription, content string) string {
	taskContext := "TASK DESCRIPTION: (not available)\n\n"
	if taskDescription != "" {
		taskContext = "TASK DESCRIPTION:\n" + taskDescription + "\n\n"
	}
	capped := content
	if len(capped) > maxReviewContentChars {
		capped = capped[:maxReviewContentChars]
	}
	return taskContext + "EVALUATION CRITERIA:\n" + criticEvaluationCriteria[specialty] + "\n\n" +
		"OUTPUT TO REVIEW:\n" + capped
}

var markdownFence = regexp.MustCompile("```(?:json)?|```")

type aiVerdict struct {
	Verdict     string  `json:"verdict"`
	Reason      *string `json:"reason"`
	Suggestions *string `json:"suggestions"`
}

// parseAIVerdict parses the critic model's JSON reply. A non-JSON reply
// defaults to PASS with a logged warning (§4.5 stage 2).
func (e *Engine) parseAIVerdict(raw string) (Verdict, string, string) {
	cleaned := strings.TrimSpace(markdownFence.ReplaceAllString(raw, ""))

	var v aiVerdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		e.logger.Warn("critic AI returned non-JSON", "response", truncate(raw, 200))
		return VerdictPass, "", "AI response was not valid JSON — manual review recommended"
	}

	verdict := VerdictPass
	if strings.ToLower(v.Verdict) == "reject" {
		verdict = VerdictReject
	}
	reason, suggestions := "", ""
	if v.Reason != nil {
		reason = *v.Reason
	}
	if v.Suggestions != nil {
		suggestions = *v.Suggestions
	}
	return verdict, reason, suggestions
}
