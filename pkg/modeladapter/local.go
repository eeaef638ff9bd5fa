package modeladapter

import (
	"context"
	"fmt"
)

// localDispatcher targets locally-hosted servers (ollama, lmstudio) whose
// completion endpoint does not support role separation — system and user
// content are concatenated into a single prompt (§4.4).
type localDispatcher struct{}

type localRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type localResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	EvalCount  int    `json:"eval_count"`
	PromptEval int    `json:"prompt_eval_count"`
}

func (d localDispatcher) generate(ctx context.Context, baseURL, apiKey, systemPrompt, userMessage string, opts GenerateOptions) (GenerateResult, error) {
	prompt := concatenatePrompt(systemPrompt, userMessage)

	var resp localResponse
	if err := postJSON(ctx, baseURL+"/api/generate", apiKey, localRequest{Model: opts.Model, Prompt: prompt}, &resp); err != nil {
		return GenerateResult{}, err
	}
	if resp.Response == "" {
		return GenerateResult{}, fmt.Errorf("local model server returned empty response")
	}

	finishReason := "stop"
	if !resp.Done {
		finishReason = "length"
	}

	return GenerateResult{
		Content:      resp.Response,
		TokensUsed:   resp.EvalCount + resp.PromptEval,
		FinishReason: finishReason,
		// Local model servers carry no billing relationship — cost is
		// always zero regardless of DryRun.
		Cost: 0,
	}, nil
}

func (d localDispatcher) stream(ctx context.Context, baseURL, apiKey, systemPrompt, userMessage string, opts GenerateOptions, out chan<- StreamDelta) error {
	result, err := d.generate(ctx, baseURL, apiKey, systemPrompt, userMessage, opts)
	if err != nil {
		return err
	}
	select {
	case out <- StreamDelta{Content: result.Content}:
	case <-ctx.Done():
		return ctx.Err()
	}
	out <- StreamDelta{Done: true}
	return nil
}

func concatenatePrompt(systemPrompt, userMessage string) string {
	if systemPrompt == "" {
		return userMessage
	}
	return systemPrompt + "\n\n" + userMessage
}
