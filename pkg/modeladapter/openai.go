package modeladapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// openAICompatibleDispatcher speaks the OpenAI chat-completions wire format
// against a configurable base_url (§4.4) — the strategy used by openai,
// azure_openai, openrouter, together, groq, and custom provider kinds.
type openAICompatibleDispatcher struct{}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

func (d openAICompatibleDispatcher) generate(ctx context.Context, baseURL, apiKey, systemPrompt, userMessage string, opts GenerateOptions) (GenerateResult, error) {
	body := openAIRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
	}

	var resp openAIResponse
	if err := postJSON(ctx, baseURL+"/chat/completions", apiKey, body, &resp); err != nil {
		return GenerateResult{}, err
	}
	if len(resp.Choices) == 0 {
		return GenerateResult{}, fmt.Errorf("openai-compatible response had no choices")
	}

	return GenerateResult{
		Content:      resp.Choices[0].Message.Content,
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: resp.Choices[0].FinishReason,
		Cost:         estimateTokenCost(resp.Usage.TotalTokens),
	}, nil
}

func (d openAICompatibleDispatcher) stream(ctx context.Context, baseURL, apiKey, systemPrompt, userMessage string, opts GenerateOptions, out chan<- StreamDelta) error {
	body := openAIRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      true,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("issuing stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return httpStatusErr(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			out <- StreamDelta{Done: true}
			return nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			select {
			case out <- StreamDelta{Content: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return scanner.Err()
}

func (d openAICompatibleDispatcher) listModels(ctx context.Context, baseURL, apiKey string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("building models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, httpStatusErr(resp)
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding models response: %w", err)
	}

	ids := make([]string, len(listing.Data))
	for i, m := range listing.Data {
		ids[i] = m.ID
	}
	return ids, nil
}

func postJSON(ctx context.Context, url, apiKey string, body, out any) error {
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	return postJSONWithHeaders(ctx, url, out, body, headers)
}

func postJSONWithHeaders(ctx context.Context, url string, out, body any, headers map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("issuing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return httpStatusErr(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Body)
}

func httpStatusErr(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &statusError{StatusCode: resp.StatusCode, Body: string(b)}
}

func isRateLimitErr(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// estimateTokenCost is a placeholder per-token rate pending per-model
// pricing tables; real accounting happens once a pricing table is wired in.
func estimateTokenCost(tokens int) float64 {
	return float64(tokens) * 0.00001
}
