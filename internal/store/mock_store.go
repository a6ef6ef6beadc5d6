package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"book-agents/internal/embeddings"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateBook(ctx context.Context, b Book) (Book, error) {
	args := m.Called(ctx, b)
	return args.Get(0).(Book), args.Error(1)
}

func (m *MockStore) GetBook(ctx context.Context, id uuid.UUID) (Book, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Book), args.Error(1)
}

func (m *MockStore) ListBooks(ctx context.Context, f BookFilter) ([]Book, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Book), args.Error(1)
}

func (m *MockStore) UpdateBookSummary(ctx context.Context, id uuid.UUID, summary string) error {
	args := m.Called(ctx, id, summary)
	return args.Error(0)
}

func (m *MockStore) SetReviewSummary(ctx context.Context, id uuid.UUID, summary string) error {
	args := m.Called(ctx, id, summary)
	return args.Error(0)
}

func (m *MockStore) CreateDocument(ctx context.Context, d Document) (Document, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) ListDocuments(ctx context.Context) ([]Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockStore) SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	args := m.Called(ctx, docID, chunks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Chunk), args.Error(1)
}

func (m *MockStore) ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Chunk), args.Error(1)
}

func (m *MockStore) NearestChunks(ctx context.Context, vector embeddings.Vector, k int, titleFilter string) ([]Chunk, error) {
	args := m.Called(ctx, vector, k, titleFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Chunk), args.Error(1)
}

func (m *MockStore) NearestBookCandidates(ctx context.Context, vector embeddings.Vector, excluded []uuid.UUID, k int) ([]BookDistance, error) {
	args := m.Called(ctx, vector, excluded, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]BookDistance), args.Error(1)
}

func (m *MockStore) CreateReview(ctx context.Context, r Review) (Review, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(Review), args.Error(1)
}

func (m *MockStore) DeleteReview(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) ListBookReviews(ctx context.Context, bookID uuid.UUID) ([]Review, error) {
	args := m.Called(ctx, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Review), args.Error(1)
}

func (m *MockStore) RecentLikedReviews(ctx context.Context, userID uuid.UUID, limit int) ([]Review, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Review), args.Error(1)
}

func (m *MockStore) ReviewedBookIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockStore) TopRatedBooks(ctx context.Context, excluded []uuid.UUID, limit int) ([]Book, error) {
	args := m.Called(ctx, excluded, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Book), args.Error(1)
}
