package modeladapter

import (
	"context"
	"fmt"
)

// anthropicDispatcher speaks the native Anthropic Messages API wire format
// (§4.4), distinct from the OpenAI-compatible strategy since Anthropic keeps
// the system prompt as a top-level field rather than a message.
type anthropicDispatcher struct{}

const defaultAnthropicBaseURL = "https://api.anthropic.com"

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (d anthropicDispatcher) generate(ctx context.Context, baseURL, apiKey, systemPrompt, userMessage string, opts GenerateOptions) (GenerateResult, error) {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	body := anthropicRequest{
		Model:     opts.Model,
		System:    systemPrompt,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: userMessage}},
	}

	var resp anthropicResponse
	if err := postJSONAnthropic(ctx, baseURL+"/v1/messages", apiKey, body, &resp); err != nil {
		return GenerateResult{}, err
	}
	if len(resp.Content) == 0 {
		return GenerateResult{}, fmt.Errorf("anthropic response had no content blocks")
	}

	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	return GenerateResult{
		Content:      resp.Content[0].Text,
		TokensUsed:   tokens,
		FinishReason: resp.StopReason,
		Cost:         estimateTokenCost(tokens),
	}, nil
}

// stream sends the full response as a single delta. Anthropic's native SSE
// event framing (message_start/content_block_delta/message_stop) differs
// from OpenAI's and is not yet wired — a faithful incremental parser is left
// for when a caller actually needs token-by-token Anthropic streaming.
func (d anthropicDispatcher) stream(ctx context.Context, baseURL, apiKey, systemPrompt, userMessage string, opts GenerateOptions, out chan<- StreamDelta) error {
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

func postJSONAnthropic(ctx context.Context, url, apiKey string, body, out any) error {
	return postJSONWithHeaders(ctx, url, out, body, map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": "2023-06-01",
	})
}
