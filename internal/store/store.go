package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"book-agents/internal/embeddings"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

var ErrNotFound = errors.New("record not found")

type Book struct {
	ID              uuid.UUID
	Title           string
	Author          string
	Genre           string
	YearPublished   int
	Summary         string
	AIReviewSummary *string // nil until computed; nulled on any review mutation
}

type Document struct {
	ID         uuid.UUID
	BookID     *uuid.UUID // optional link to a catalog book
	Filename   string
	FilePath   string
	Status     DocumentStatus
	UploadDate time.Time
}

// ChunkMetadata carries the owning book's catalog fields for filtered search.
type ChunkMetadata struct {
	BookID *uuid.UUID
	Title  string
	Author string
	Genre  string
}

type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int
	Content    string
	Metadata   ChunkMetadata
	Embedding  embeddings.Vector
}

type Review struct {
	ID         uuid.UUID
	BookID     uuid.UUID
	UserID     uuid.UUID
	ReviewText string
	Rating     int
	Embedding  embeddings.Vector // nil when the review has no text
	CreatedAt  time.Time
}

// BookFilter restricts catalog listings. Genre and Author are matched as
// case-insensitive substrings; zero Limit means no cap.
type BookFilter struct {
	Genre  string
	Author string
	Limit  int
}

// BookDistance is one nearest-neighbor candidate row: a book reached through
// one of its chunks, with that chunk's distance to the query vector.
type BookDistance struct {
	Book     Book
	Distance float64
}

// Store defines persistence contract; an external DB implementation can replace this.
type Store interface {
	CreateBook(ctx context.Context, b Book) (Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (Book, error)
	ListBooks(ctx context.Context, f BookFilter) ([]Book, error)
	UpdateBookSummary(ctx context.Context, id uuid.UUID, summary string) error
	SetReviewSummary(ctx context.Context, id uuid.UUID, summary string) error

	CreateDocument(ctx context.Context, d Document) (Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error

	// SaveChunks replaces the document's chunk set in one transaction, so a
	// reader never observes a partial set from this attempt.
	SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error)
	ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error)
	NearestChunks(ctx context.Context, vector embeddings.Vector, k int, titleFilter string) ([]Chunk, error)
	NearestBookCandidates(ctx context.Context, vector embeddings.Vector, excluded []uuid.UUID, k int) ([]BookDistance, error)

	// CreateReview and DeleteReview null the book's ai_review_summary in the
	// same transaction as the mutation.
	CreateReview(ctx context.Context, r Review) (Review, error)
	DeleteReview(ctx context.Context, id uuid.UUID) error
	ListBookReviews(ctx context.Context, bookID uuid.UUID) ([]Review, error)
	RecentLikedReviews(ctx context.Context, userID uuid.UUID, limit int) ([]Review, error)
	ReviewedBookIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	TopRatedBooks(ctx context.Context, excluded []uuid.UUID, limit int) ([]Book, error)
}
