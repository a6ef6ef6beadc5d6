// Package ingest turns an uploaded document into searchable chunks: extract
// text, derive a book summary, split, batch-embed, and commit the chunk set
// atomically while advancing the document's status.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"book-agents/internal/chunker"
	"book-agents/internal/embeddings"
	"book-agents/internal/extract"
	"book-agents/internal/llm"
	"book-agents/internal/store"
)

// summaryPrefixCap bounds how much extracted text feeds the book summary.
const summaryPrefixCap = 10000

type Pipeline struct {
	store    store.Store
	embedder embeddings.Embedder
	llm      llm.Client
	log      *slog.Logger

	chunkOpts chunker.Options

	// extractText is swappable in tests; defaults to extract.Text.
	extractText func(filePath, filename string) (string, error)
}

func New(st store.Store, embedder embeddings.Embedder, client llm.Client, opts chunker.Options, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store:       st,
		embedder:    embedder,
		llm:         client,
		log:         log,
		chunkOpts:   opts,
		extractText: extract.Text,
	}
}

// Ingest processes one document end to end. The document moves to
// "processing" immediately so readers observe the attempt; any failure after
// that moves it to "failed" and re-raises, leaving no partial chunk set
// visible from this attempt.
func (p *Pipeline) Ingest(ctx context.Context, docID uuid.UUID) error {
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := p.store.UpdateDocumentStatus(ctx, docID, store.StatusProcessing); err != nil {
		return err
	}

	if err := p.run(ctx, doc); err != nil {
		if upErr := p.store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); upErr != nil {
			p.log.Error("failed to mark document failed", "document_id", docID, "err", upErr)
		}
		return err
	}
	return p.store.UpdateDocumentStatus(ctx, docID, store.StatusReady)
}

func (p *Pipeline) run(ctx context.Context, doc store.Document) error {
	text, err := p.extractText(doc.FilePath, doc.Filename)
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}

	meta := store.ChunkMetadata{}
	if doc.BookID != nil {
		book, err := p.store.GetBook(ctx, *doc.BookID)
		if err != nil {
			return fmt.Errorf("failed to load linked book: %w", err)
		}
		meta = store.ChunkMetadata{
			BookID: doc.BookID,
			Title:  book.Title,
			Author: book.Author,
			Genre:  book.Genre,
		}
		// Best-effort: a summary failure must not block indexing.
		p.summarizeBook(ctx, book.ID, text)
	}

	pieces := chunker.Split(text, p.chunkOpts)
	if len(pieces) == 0 {
		// Nothing to index; commit an empty set so stale chunks are cleared.
		_, err := p.store.SaveChunks(ctx, doc.ID, nil)
		return err
	}

	texts := make([]string, len(pieces))
	for i, c := range pieces {
		texts[i] = c.Text
	}
	// One batch call for the whole document bounds provider round-trips.
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	chunks := make([]store.Chunk, len(pieces))
	for i, c := range pieces {
		chunks[i] = store.Chunk{
			Index:     c.Index,
			Content:   c.Text,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}
	if _, err := p.store.SaveChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("failed to persist chunks: %w", err)
	}
	return nil
}

// summarizeBook generates a short summary from a bounded prefix of the text
// and stores it on the book. Failures are logged and swallowed.
func (p *Pipeline) summarizeBook(ctx context.Context, bookID uuid.UUID, text string) {
	prefix := text
	if len(prefix) > summaryPrefixCap {
		prefix = prefix[:summaryPrefixCap]
	}
	prompt := fmt.Sprintf("Please provide a concise summary of the following book content:\n\n%s", prefix)
	summary, err := p.llm.Complete(ctx, prompt)
	if err != nil {
		p.log.Warn("book summary generation failed; continuing ingestion", "book_id", bookID, "err", err)
		return
	}
	if err := p.store.UpdateBookSummary(ctx, bookID, summary); err != nil {
		p.log.Warn("failed to store book summary; continuing ingestion", "book_id", bookID, "err", err)
	}
}
