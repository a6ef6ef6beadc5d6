// Package recommend ranks unseen books against a user's taste vector, the
// mean embedding of their recent positively rated reviews. Users without a
// taste signal fall back to a popularity ranking.
package recommend

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"book-agents/internal/embeddings"
	"book-agents/internal/store"
)

const (
	DefaultLimit = 5

	// tasteReviewCap bounds how many recent liked reviews feed the taste vector.
	tasteReviewCap = 10

	// overFetchFactor compensates for several chunks of the same book
	// clustering near the taste vector before deduplication.
	overFetchFactor = 3
)

type Engine struct {
	store store.Store
}

func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// Recommend returns up to limit books the user has not reviewed, best first.
func (e *Engine) Recommend(ctx context.Context, userID uuid.UUID, limit int) ([]store.Book, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	liked, err := e.store.RecentLikedReviews(ctx, userID, tasteReviewCap)
	if err != nil {
		return nil, fmt.Errorf("failed to load liked reviews: %w", err)
	}
	reviewed, err := e.store.ReviewedBookIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviewed books: %w", err)
	}

	if len(liked) == 0 {
		// Cold start: no taste signal, rank by average rating.
		books, err := e.store.TopRatedBooks(ctx, reviewed, limit)
		if err != nil {
			return nil, fmt.Errorf("popularity fallback failed: %w", err)
		}
		return books, nil
	}

	vectors := make([]embeddings.Vector, len(liked))
	for i, r := range liked {
		vectors[i] = r.Embedding
	}
	taste := embeddings.Mean(vectors)

	candidates, err := e.store.NearestBookCandidates(ctx, taste, reviewed, overFetchFactor*limit)
	if err != nil {
		return nil, fmt.Errorf("candidate search failed: %w", err)
	}

	// First occurrence wins: candidates arrive nearest first, so the first
	// row for a book is its nearest chunk.
	seen := make(map[uuid.UUID]bool)
	var books []store.Book
	for _, c := range candidates {
		if seen[c.Book.ID] {
			continue
		}
		seen[c.Book.ID] = true
		books = append(books, c.Book)
		if len(books) == limit {
			break
		}
	}
	return books, nil
}
