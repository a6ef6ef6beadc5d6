package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"book-agents/internal/agent"
	"book-agents/internal/app"
	"book-agents/internal/httputil"
	"book-agents/internal/recommend"
	"book-agents/internal/retrieval"
	"book-agents/internal/reviews"
)

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	retriever := retrieval.New(deps.Store, deps.Embedder)
	chatAgent := agent.New(deps.LLM, retriever, deps.Store, deps.Log)
	recommender := recommend.New(deps.Store)
	reviewSvc := reviews.New(deps.Store, deps.Embedder, deps.LLM, deps.Log)

	r := httputil.NewRouter(deps.Log)

	r.Post("/api/documents/upload", uploadHandler(deps))
	r.Get("/api/documents", listDocumentsHandler(deps))
	r.Post("/api/documents/{id}/ingest", ingestHandler(deps))
	r.Delete("/api/documents/{id}", deleteDocumentHandler(deps))

	r.Post("/api/books", createBookHandler(deps))
	r.Get("/api/books", listBooksHandler(deps))
	r.Get("/api/books/recommendations", recommendationsHandler(deps, recommender))
	r.Get("/api/books/{id}", getBookHandler(deps))
	r.Get("/api/books/{id}/reviews", listReviewsHandler(deps))
	r.Post("/api/books/{id}/reviews", createReviewHandler(deps, reviewSvc))
	r.Get("/api/books/{id}/review-summary", reviewSummaryHandler(deps, reviewSvc))
	r.Delete("/api/reviews/{id}", deleteReviewHandler(deps, reviewSvc))

	r.Post("/api/chat", chatHandler(deps, chatAgent))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}
