// Package agent routes chat queries about the book catalog: each query is
// classified as NON_BOOK, METADATA, or CONTENT and answered accordingly,
// with source attribution for grounded answers.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"book-agents/internal/llm"
	"book-agents/internal/retrieval"
	"book-agents/internal/store"
)

const defaultListLimit = 5

type Agent struct {
	llm       llm.Client
	retriever retrieval.Searcher
	store     store.Store
	log       *slog.Logger
}

func New(client llm.Client, retriever retrieval.Searcher, st store.Store, log *slog.Logger) *Agent {
	return &Agent{llm: client, retriever: retriever, store: st, log: log}
}

// Answer classifies the query and produces an answer plus source labels.
// Routing failures degrade to a fixed apology rather than surfacing an error:
// this is an interactive surface and a best-effort answer beats a hard 500.
func (a *Agent) Answer(ctx context.Context, query string, history []Turn) (string, []string, error) {
	label, err := a.llm.Complete(ctx, classifyPrompt(query, history))
	if err != nil {
		a.log.Error("intent classification failed", "err", err)
		return apologyMessage, nil, nil
	}

	switch parseIntent(label) {
	case IntentNonBook:
		// Short-circuit: no retrieval, no further LLM calls.
		return refusalMessage, []string{}, nil
	case IntentMetadata:
		return a.answerMetadata(ctx, query)
	default:
		return a.answerContent(ctx, query, history)
	}
}

// answerMetadata lists catalog books matching criteria extracted from the query.
func (a *Agent) answerMetadata(ctx context.Context, query string) (string, []string, error) {
	filter := a.extractFilter(ctx, query)
	books, err := a.store.ListBooks(ctx, filter)
	if err != nil {
		a.log.Error("catalog listing failed", "err", err)
		return apologyMessage, nil, nil
	}
	return formatListing(books), []string{catalogSource}, nil
}

// answerContent retrieves the nearest chunks (optionally narrowed to a
// mentioned title) and composes a grounded answer.
func (a *Agent) answerContent(ctx context.Context, query string, history []Turn) (string, []string, error) {
	title := a.extractTitle(ctx, query)
	chunks, err := a.retriever.Search(ctx, query, title, retrieval.DefaultTopK)
	if err != nil {
		a.log.Error("retrieval failed", "err", err)
		return apologyMessage, nil, nil
	}

	contextText := buildContext(chunks)
	answer, err := a.llm.Complete(ctx, answerPrompt(query, contextText, history))
	if err != nil {
		a.log.Error("answer composition failed", "err", err)
		return apologyMessage, nil, nil
	}
	return answer, sourceLabels(chunks), nil
}

type bookFilterJSON struct {
	Genre  string `json:"genre"`
	Author string `json:"author"`
	Limit  int    `json:"limit"`
}

// extractFilter asks the LLM for structured criteria. Malformed output
// degrades to an empty filter; it never fails the chat turn.
func (a *Agent) extractFilter(ctx context.Context, query string) store.BookFilter {
	filter := store.BookFilter{Limit: defaultListLimit}
	raw, err := a.llm.Complete(ctx, filterPrompt(query))
	if err != nil {
		a.log.Warn("filter extraction failed; using empty filter", "err", err)
		return filter
	}
	var parsed bookFilterJSON
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		a.log.Warn("filter extraction returned malformed JSON; using empty filter", "err", err)
		return filter
	}
	filter.Genre = parsed.Genre
	filter.Author = parsed.Author
	if parsed.Limit > 0 {
		filter.Limit = parsed.Limit
	}
	return filter
}

// extractTitle asks the LLM for an explicit title mention; "" means none.
func (a *Agent) extractTitle(ctx context.Context, query string) string {
	raw, err := a.llm.Complete(ctx, titlePrompt(query))
	if err != nil {
		a.log.Warn("title extraction failed; searching without filter", "err", err)
		return ""
	}
	title := strings.Trim(strings.TrimSpace(raw), `"`)
	if strings.EqualFold(title, "none") {
		return ""
	}
	return title
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func formatListing(books []store.Book) string {
	if len(books) == 0 {
		return "I couldn't find any books matching that in the catalog."
	}
	var b strings.Builder
	b.WriteString("Here's what I found in the catalog:\n")
	for _, book := range books {
		fmt.Fprintf(&b, "- %s by %s", book.Title, book.Author)
		if book.Genre != "" {
			fmt.Fprintf(&b, " (%s)", book.Genre)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildContext concatenates chunk contents for the answer prompt.
func buildContext(chunks []store.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n")
}

// sourceLabels derives one label per distinct source, nearest first.
func sourceLabels(chunks []store.Chunk) []string {
	seen := make(map[string]bool)
	labels := []string{}
	for _, c := range chunks {
		label := c.Metadata.Title
		if label == "" {
			label = "Document " + c.DocumentID.String()
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	return labels
}
