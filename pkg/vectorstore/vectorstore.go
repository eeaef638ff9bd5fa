// Package vectorstore defines an opaque similarity-search interface and a
// Postgres-backed implementation, used by the Critic Engine's
// critic_case_law collection and the Amendment/Ethos/Knowledge lookups the
// original system drives through collection-scoped embedding queries.
package vectorstore

import (
	"context"

	"github.com/google/uuid"
)

// Record is one stored item within a collection.
type Record struct {
	ID        uuid.UUID
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

// Match is a query result: a Record plus its similarity score against the
// query embedding (cosine similarity, higher is closer).
type Match struct {
	Record Record
	Score  float64
}

// Store is the opaque similarity-search contract every collection-scoped
// caller (Critic Engine's critic_case_law, Amendment's article embeddings,
// Knowledge Governance's task_patterns/sovereign_prefs) programs against.
// Callers never see how similarity is computed or where vectors live.
type Store interface {
	// Add inserts or replaces a record within collection.
	Add(ctx context.Context, collection string, rec Record) error
	// Query returns the topK closest records in collection to embedding.
	Query(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error)
	// Delete removes a record from collection.
	Delete(ctx context.Context, collection string, id uuid.UUID) error
}

// Embedder produces an embedding vector for a piece of text. Implemented by
// whatever model adapter path the caller wires in (kept decoupled from
// pkg/modeladapter so vectorstore never depends on provider dispatch).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Well-known collection names referenced across the domain packages.
const (
	CollectionConstitutionArticles = "constitution_articles"
	CollectionEthos                = "ethos"
	CollectionKnowledge            = "knowledge"
	CollectionTaskPatterns         = "task_patterns"
	CollectionCriticCaseLaw        = "critic_case_law"
	CollectionSovereignPrefs       = "sovereign_prefs"
)
