// Package reviews owns review mutations and the cached AI review summary.
// Every create or delete invalidates the owning book's cached summary inside
// the same store transaction; the summary is regenerated lazily on read.
package reviews

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"book-agents/internal/embeddings"
	"book-agents/internal/llm"
	"book-agents/internal/store"
)

const noReviewsPlaceholder = "No reviews yet."

type Service struct {
	store    store.Store
	embedder embeddings.Embedder
	llm      llm.Client
	log      *slog.Logger
}

func New(st store.Store, embedder embeddings.Embedder, client llm.Client, log *slog.Logger) *Service {
	return &Service{store: st, embedder: embedder, llm: client, log: log}
}

// Create stores a review. When the review has text, its embedding is computed
// once here; a provider failure fails the create rather than persisting a
// review without its taste signal.
func (s *Service) Create(ctx context.Context, bookID, userID uuid.UUID, text string, rating int) (store.Review, error) {
	if rating < 1 || rating > 5 {
		return store.Review{}, fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return store.Review{}, err
	}

	review := store.Review{
		BookID:     bookID,
		UserID:     userID,
		ReviewText: text,
		Rating:     rating,
	}
	if strings.TrimSpace(text) != "" {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return store.Review{}, fmt.Errorf("failed to embed review text: %w", err)
		}
		review.Embedding = vec
	}
	return s.store.CreateReview(ctx, review)
}

// Delete removes a review; the store invalidates the book's summary with it.
func (s *Service) Delete(ctx context.Context, reviewID uuid.UUID) error {
	return s.store.DeleteReview(ctx, reviewID)
}

// Summary returns the book's AI review summary, generating and caching it on
// first read after an invalidation. Books without textual reviews get a fixed
// placeholder and no LLM call.
func (s *Service) Summary(ctx context.Context, bookID uuid.UUID) (string, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return "", err
	}
	if book.AIReviewSummary != nil {
		return *book.AIReviewSummary, nil
	}

	all, err := s.store.ListBookReviews(ctx, bookID)
	if err != nil {
		return "", err
	}
	var texts []string
	for _, r := range all {
		if strings.TrimSpace(r.ReviewText) != "" {
			texts = append(texts, r.ReviewText)
		}
	}
	if len(texts) == 0 {
		return noReviewsPlaceholder, nil
	}

	summary, err := s.llm.Complete(ctx, reviewSummaryPrompt(texts))
	if err != nil {
		return "", err
	}
	if err := s.store.SetReviewSummary(ctx, bookID, summary); err != nil {
		return "", err
	}
	return summary, nil
}

func reviewSummaryPrompt(texts []string) string {
	var b strings.Builder
	for _, t := range texts {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	return fmt.Sprintf("Summarize the general sentiment and key points from the following book reviews:\n\n%s", b.String())
}
