package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/dbtx"
)

// PGStore is a Postgres-backed Store. Embeddings are stored as a
// double-precision array column rather than through the pgvector extension:
// no example in the retrieval pack carries a pgvector driver, and candidate
// collections here are small enough (case-law rejections, constitution
// articles) that an in-process cosine-similarity scan over a collection's
// rows is simple and fast enough, avoiding an extension dependency the rest
// of the stack doesn't otherwise need.
type PGStore struct {
	dbtx dbtx.DBTX
}

// NewPGStore creates a PGStore backed by the given database handle.
func NewPGStore(db dbtx.DBTX) *PGStore {
	return &PGStore{dbtx: db}
}

// Add implements Store.
func (s *PGStore) Add(ctx context.Context, collection string, rec Record) error {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	embedding := make([]float64, len(rec.Embedding))
	for i, v := range rec.Embedding {
		embedding[i] = float64(v)
	}

	_, err := s.dbtx.Exec(ctx, `
		INSERT INTO vector_records (id, collection, text, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
	`, id, collection, rec.Text, metadataHstore(rec.Metadata), embedding)
	if err != nil {
		return fmt.Errorf("adding vector record to %s: %w", collection, err)
	}
	return nil
}

// Query implements Store: it loads every record in collection and ranks by
// cosine similarity in-process.
func (s *PGStore) Query(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error) {
	rows, err := s.dbtx.Query(ctx, `
		SELECT id, text, metadata, embedding FROM vector_records WHERE collection = $1
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id uuid.UUID
		var text string
		var metadata map[string]string
		var stored []float64
		if err := rows.Scan(&id, &text, &metadata, &stored); err != nil {
			return nil, fmt.Errorf("scanning vector record: %w", err)
		}

		storedF32 := make([]float32, len(stored))
		for i, v := range stored {
			storedF32[i] = float32(v)
		}

		score := cosineSimilarity(embedding, storedF32)
		matches = append(matches, Match{
			Record: Record{ID: id, Text: text, Metadata: metadata, Embedding: storedF32},
			Score:  score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector records: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete implements Store.
func (s *PGStore) Delete(ctx context.Context, collection string, id uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `DELETE FROM vector_records WHERE collection = $1 AND id = $2`, collection, id)
	return err
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func metadataHstore(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
