package modeladapter

import (
	"context"
	"fmt"

	"github.com/neurotech-brt/agentium/pkg/provider"
)

// embeddingRequest/embeddingResponse speak the OpenAI-compatible /embeddings
// wire format, the same family of providers the chat dispatcher already
// targets via base_url indirection (§4.4).
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embedder adapts Adapter to vectorstore.Embedder, dispatched against a
// single fixed provider kind rather than the generate path's fallback
// chain — collection-scoped embeddings must stay in the same vector space
// across calls, so silently falling back to a different provider's model
// would poison similarity search.
type Embedder struct {
	adapter *Adapter
	kind    provider.Kind
	model   string
}

// NewEmbedder returns an Embedder that always selects a key of kind,
// requesting model (or the key's default model when model is empty).
func NewEmbedder(adapter *Adapter, kind provider.Kind, model string) *Embedder {
	return &Embedder{adapter: adapter, kind: kind, model: model}
}

// Embed implements vectorstore.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	sel, err := e.adapter.manager.SelectKey(ctx, e.kind, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("selecting embedding key: %w", err)
	}

	model := e.model
	if model == "" {
		model = sel.Key.DefaultModel
	}

	var resp embeddingResponse
	if err := postJSON(ctx, sel.Key.BaseURL+"/embeddings", sel.Material, embeddingRequest{Model: model, Input: text}, &resp); err != nil {
		e.adapter.manager.ReportOutcome(ctx, sel.Key.ID, provider.OutcomeReport{Success: false})
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		e.adapter.manager.ReportOutcome(ctx, sel.Key.ID, provider.OutcomeReport{Success: false})
		return nil, fmt.Errorf("embedding response had no data")
	}

	e.adapter.manager.ReportOutcome(ctx, sel.Key.ID, provider.OutcomeReport{Success: true})
	return resp.Data[0].Embedding, nil
}
