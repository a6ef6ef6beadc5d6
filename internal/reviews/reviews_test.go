package reviews

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"book-agents/internal/embeddings"
	"book-agents/internal/llm"
	"book-agents/internal/store"
)

func newService(st store.Store, e embeddings.Embedder, l llm.Client) *Service {
	return New(st, e, l, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateEmbedsTextualReview(t *testing.T) {
	mockStore := new(store.MockStore)
	mockEmbedder := new(embeddings.MockEmbedder)
	bookID, userID := uuid.New(), uuid.New()
	vec := embeddings.Vector{0.3, 0.7}

	mockStore.On("GetBook", mock.Anything, bookID).Return(store.Book{ID: bookID}, nil).Once()
	mockEmbedder.On("Embed", mock.Anything, "loved the world building").Return(vec, nil).Once()
	mockStore.On("CreateReview", mock.Anything, mock.MatchedBy(func(r store.Review) bool {
		return r.BookID == bookID && r.Rating == 5 && len(r.Embedding) == 2
	})).Return(store.Review{ID: uuid.New()}, nil).Once()

	svc := newService(mockStore, mockEmbedder, new(llm.MockClient))
	if _, err := svc.Create(context.Background(), bookID, userID, "loved the world building", 5); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mockStore.AssertExpectations(t)
	mockEmbedder.AssertExpectations(t)
}

func TestCreateSkipsEmbeddingWithoutText(t *testing.T) {
	mockStore := new(store.MockStore)
	mockEmbedder := new(embeddings.MockEmbedder)
	bookID := uuid.New()

	mockStore.On("GetBook", mock.Anything, bookID).Return(store.Book{ID: bookID}, nil).Once()
	mockStore.On("CreateReview", mock.Anything, mock.MatchedBy(func(r store.Review) bool {
		return r.Embedding == nil
	})).Return(store.Review{}, nil).Once()

	svc := newService(mockStore, mockEmbedder, new(llm.MockClient))
	if _, err := svc.Create(context.Background(), bookID, uuid.New(), "  ", 3); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mockEmbedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestCreateRejectsBadRating(t *testing.T) {
	svc := newService(new(store.MockStore), new(embeddings.MockEmbedder), new(llm.MockClient))
	if _, err := svc.Create(context.Background(), uuid.New(), uuid.New(), "text", 6); err == nil {
		t.Fatal("expected error for rating 6")
	}
	if _, err := svc.Create(context.Background(), uuid.New(), uuid.New(), "text", 0); err == nil {
		t.Fatal("expected error for rating 0")
	}
}

func TestCreateUnknownBook(t *testing.T) {
	mockStore := new(store.MockStore)
	bookID := uuid.New()
	mockStore.On("GetBook", mock.Anything, bookID).Return(store.Book{}, store.ErrNotFound).Once()

	svc := newService(mockStore, new(embeddings.MockEmbedder), new(llm.MockClient))
	_, err := svc.Create(context.Background(), bookID, uuid.New(), "text", 4)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateEmbeddingFailureFailsCreate(t *testing.T) {
	mockStore := new(store.MockStore)
	mockEmbedder := new(embeddings.MockEmbedder)
	bookID := uuid.New()

	mockStore.On("GetBook", mock.Anything, bookID).Return(store.Book{ID: bookID}, nil).Once()
	mockEmbedder.On("Embed", mock.Anything, "text").Return(nil, embeddings.ErrProvider).Once()

	svc := newService(mockStore, mockEmbedder, new(llm.MockClient))
	_, err := svc.Create(context.Background(), bookID, uuid.New(), "text", 4)
	if !errors.Is(err, embeddings.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	mockStore.AssertNotCalled(t, "CreateReview", mock.Anything, mock.Anything)
}

func TestSummaryReturnsCachedValue(t *testing.T) {
	mockStore := new(store.MockStore)
	mockLLM := new(llm.MockClient)
	bookID := uuid.New()
	cached := "Readers loved it."

	mockStore.On("GetBook", mock.Anything, bookID).
		Return(store.Book{ID: bookID, AIReviewSummary: &cached}, nil).Once()

	svc := newService(mockStore, new(embeddings.MockEmbedder), mockLLM)
	got, err := svc.Summary(context.Background(), bookID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if got != cached {
		t.Errorf("got %q, want cached %q", got, cached)
	}
	mockLLM.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestSummaryGeneratesAndPersists(t *testing.T) {
	mockStore := new(store.MockStore)
	mockLLM := new(llm.MockClient)
	bookID := uuid.New()

	mockStore.On("GetBook", mock.Anything, bookID).Return(store.Book{ID: bookID}, nil).Once()
	mockStore.On("ListBookReviews", mock.Anything, bookID).Return([]store.Review{
		{ReviewText: "great pacing", Rating: 5},
		{ReviewText: "", Rating: 2}, // no text, excluded from the prompt
		{ReviewText: "weak ending", Rating: 3},
	}, nil).Once()
	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "great pacing") && strings.Contains(p, "weak ending")
	})).Return("Mostly positive.", nil).Once()
	mockStore.On("SetReviewSummary", mock.Anything, bookID, "Mostly positive.").Return(nil).Once()

	svc := newService(mockStore, new(embeddings.MockEmbedder), mockLLM)
	got, err := svc.Summary(context.Background(), bookID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if got != "Mostly positive." {
		t.Errorf("got %q", got)
	}
	mockStore.AssertExpectations(t)
	mockLLM.AssertExpectations(t)
}

func TestSummaryNoTextualReviews(t *testing.T) {
	mockStore := new(store.MockStore)
	mockLLM := new(llm.MockClient)
	bookID := uuid.New()

	mockStore.On("GetBook", mock.Anything, bookID).Return(store.Book{ID: bookID}, nil).Once()
	mockStore.On("ListBookReviews", mock.Anything, bookID).Return([]store.Review{
		{ReviewText: "", Rating: 4},
	}, nil).Once()

	svc := newService(mockStore, new(embeddings.MockEmbedder), mockLLM)
	got, err := svc.Summary(context.Background(), bookID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if got != noReviewsPlaceholder {
		t.Errorf("got %q, want placeholder", got)
	}
	// No generation and no cache write for the placeholder.
	mockLLM.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	mockStore.AssertNotCalled(t, "SetReviewSummary", mock.Anything, mock.Anything, mock.Anything)
}
