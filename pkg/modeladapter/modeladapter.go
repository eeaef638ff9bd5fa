// Package modeladapter implements the Model Adapter (§4.4): a uniform
// generate/stream_generate contract dispatched per provider kind to one of
// three wire strategies.
package modeladapter

import (
	"context"
	"time"

	"github.com/neurotech-brt/agentium/pkg/provider"
)

// GenerateOptions configures a single generate call.
type GenerateOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// DryRun performs the call but must never record spend — used by
	// KeyManager.TestKey and FetchModels probes.
	DryRun bool
}

// GenerateResult is the uniform response shape (§4.4).
type GenerateResult struct {
	Content      string
	TokensUsed   int
	LatencyMs    float64
	Model        string
	FinishReason string
	Cost         float64
}

// StreamDelta is one chunk of a streaming response.
type StreamDelta struct {
	Content string
	Done    bool
}

// dispatcher is the per-kind wire strategy contract.
type dispatcher interface {
	generate(ctx context.Context, baseURL, apiKey, systemPrompt, userMessage string, opts GenerateOptions) (GenerateResult, error)
	stream(ctx context.Context, baseURL, apiKey, systemPrompt, userMessage string, opts GenerateOptions, out chan<- StreamDelta) error
}

// Adapter implements the uniform Model Adapter contract, dispatching per
// provider.Kind to the OpenAI-compatible, native-Anthropic, or
// local-fallback strategy (§4.4).
type Adapter struct {
	manager *provider.Manager
}

// NewAdapter constructs an Adapter backed by the given key manager.
func NewAdapter(manager *provider.Manager) *Adapter {
	return &Adapter{manager: manager}
}

func dispatcherFor(kind provider.Kind) dispatcher {
	switch kind {
	case provider.KindAnthropic:
		return anthropicDispatcher{}
	case provider.KindOllama, provider.KindLMStudio:
		return localDispatcher{}
	default:
		// openai, azure_openai, openrouter, together, groq, custom all speak
		// the OpenAI-compatible wire format via base-URL indirection (§4.4).
		return openAICompatibleDispatcher{}
	}
}

// Generate runs a single request against kind, selecting a healthy key via
// the Provider/Key Manager, falling back across fallbackKinds, and recording
// the outcome (success/failure, spend, latency) before returning.
func (a *Adapter) Generate(ctx context.Context, kind provider.Kind, fallbackKinds []provider.Kind, systemPrompt, userMessage string, opts GenerateOptions) (GenerateResult, error) {
	estimatedCost := estimateCost(opts)
	sel, err := a.manager.SelectKey(ctx, kind, fallbackKinds, estimatedCost)
	if err != nil {
		return GenerateResult{}, err
	}

	model := opts.Model
	if model == "" {
		model = sel.Key.DefaultModel
	}
	d := dispatcherFor(sel.Key.ProviderKind)

	start := time.Now()
	result, genErr := d.generate(ctx, sel.Key.BaseURL, sel.Material, systemPrompt, userMessage, opts)
	latency := time.Since(start).Seconds() * 1000

	if genErr != nil {
		rateLimited := isRateLimitErr(genErr)
		a.manager.ReportOutcome(ctx, sel.Key.ID, provider.OutcomeReport{Success: false, RateLimited: rateLimited, LatencyMs: latency})
		return GenerateResult{}, genErr
	}

	result.LatencyMs = latency
	result.Model = model

	cost := result.Cost
	if opts.DryRun {
		cost = 0
	}
	a.manager.ReportOutcome(ctx, sel.Key.ID, provider.OutcomeReport{Success: true, ActualCost: cost, LatencyMs: latency})

	return result, nil
}

// StreamGenerate is the streaming variant of Generate; deltas are sent on
// out, which StreamGenerate closes when it returns. The caller must drain out
// until Done is observed or ctx is cancelled (§4.4: a caller-supplied cancel token must abort the in-flight
// request — here, ctx cancellation).
func (a *Adapter) StreamGenerate(ctx context.Context, kind provider.Kind, fallbackKinds []provider.Kind, systemPrompt, userMessage string, opts GenerateOptions, out chan<- StreamDelta) error {
	defer close(out)

	estimatedCost := estimateCost(opts)
	sel, err := a.manager.SelectKey(ctx, kind, fallbackKinds, estimatedCost)
	if err != nil {
		return err
	}

	d := dispatcherFor(sel.Key.ProviderKind)
	start := time.Now()
	err = d.stream(ctx, sel.Key.BaseURL, sel.Material, systemPrompt, userMessage, opts, out)
	latency := time.Since(start).Seconds() * 1000

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-flight: release the key without recording spend
			// for the cancelled portion (§4.4).
			return ctx.Err()
		}
		a.manager.ReportOutcome(ctx, sel.Key.ID, provider.OutcomeReport{Success: false, RateLimited: isRateLimitErr(err), LatencyMs: latency})
		return err
	}

	a.manager.ReportOutcome(ctx, sel.Key.ID, provider.OutcomeReport{Success: true, LatencyMs: latency})
	return nil
}

// ProbeKey implements provider.Prober: a constant-cost (or no-cost) health
// check dispatched with DryRun so KeyManager.TestKey never spends budget.
func (a *Adapter) ProbeKey(ctx context.Context, k provider.Key, dryRun bool) error {
	d := dispatcherFor(k.ProviderKind)
	material, err := a.manager.DecryptMaterial(k)
	if err != nil {
		return err
	}
	_, err = d.generate(ctx, k.BaseURL, material, "", probePrompt, GenerateOptions{MaxTokens: 1, DryRun: dryRun})
	return err
}

// FetchModelsFor implements provider.Prober, listing models the key's
// account can access.
func (a *Adapter) FetchModelsFor(ctx context.Context, k provider.Key) ([]string, error) {
	d := dispatcherFor(k.ProviderKind)
	lister, ok := d.(modelLister)
	if !ok {
		return []string{k.DefaultModel}, nil
	}
	material, err := a.manager.DecryptMaterial(k)
	if err != nil {
		return nil, err
	}
	return lister.listModels(ctx, k.BaseURL, material)
}

const probePrompt = "respond with the single word OK"

// modelLister is an optional capability a dispatcher may implement to list
// models from a provider's API.
type modelLister interface {
	listModels(ctx context.Context, baseURL, apiKey string) ([]string, error)
}

func estimateCost(opts GenerateOptions) float64 {
	if opts.DryRun {
		return 0
	}
	// A conservative flat estimate pending actual usage; real cost is
	// recorded from the response and reconciled in ReportOutcome.
	return 0.01
}
