package retrieval

import (
	"context"
	"fmt"

	"book-agents/internal/embeddings"
	"book-agents/internal/store"
)

const DefaultTopK = 3

// Engine embeds queries and finds the nearest chunks in the store.
type Engine struct {
	store    store.Store
	embedder embeddings.Embedder
}

// Searcher is the read-only contract the router depends on.
type Searcher interface {
	Search(ctx context.Context, query, titleFilter string, k int) ([]store.Chunk, error)
}

func New(st store.Store, embedder embeddings.Embedder) *Engine {
	return &Engine{store: st, embedder: embedder}
}

// Search returns up to k chunks ordered by ascending L2 distance from the
// embedded query. titleFilter, when set, restricts results to chunks whose
// metadata title contains it (case-insensitive). No side effects; provider
// failures propagate without retries.
func (e *Engine) Search(ctx context.Context, query, titleFilter string, k int) ([]store.Chunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	chunks, err := e.store.NearestChunks(ctx, vec, k, titleFilter)
	if err != nil {
		return nil, fmt.Errorf("nearest chunk search failed: %w", err)
	}
	return chunks, nil
}
