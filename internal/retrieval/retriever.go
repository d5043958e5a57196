package retrieval

import (
	"context"
	"fmt"
)

// Retriever combines external embedding and tenant-scoped vector search.
type Retriever struct {
	embedder *Embedder
	store    *Store
}

// NewRetriever creates a Retriever backed by the given Embedder and Store.
func NewRetriever(embedder *Embedder, store *Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

const (
	defaultTopK = 5
	maxTopK     = 100
)

// Search runs a similarity query with a caller-supplied vector.
func (r *Retriever) Search(ctx context.Context, tenantID string, vector []float32, topK int) ([]ScoredChunk, error) {
	return r.store.Search(ctx, tenantID, vector, clampTopK(topK))
}

// SearchText embeds the query through the external embedding endpoint and
// then searches.
func (r *Retriever) SearchText(ctx context.Context, tenantID, query string, topK int) ([]ScoredChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return r.store.Search(ctx, tenantID, vec, clampTopK(topK))
}

func clampTopK(topK int) int {
	if topK <= 0 {
		return defaultTopK
	}
	if topK > maxTopK {
		return maxTopK
	}
	return topK
}
