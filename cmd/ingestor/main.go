package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"book-agents/internal/app"
	"book-agents/internal/chunker"
	"book-agents/internal/httputil"
	"book-agents/internal/ingest"
	"book-agents/internal/queue"
)

type ingestTaskPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("ingestor starting")

	pipeline := ingest.New(deps.Store, deps.Embedder, deps.LLM, chunker.Options{
		ChunkSize: deps.Config.ChunkSize,
		Overlap:   deps.Config.ChunkOverlap,
	}, deps.Log)

	g, ctx := errgroup.WithContext(context.Background())

	// Run queue worker
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeIngest, func(ctx context.Context, task queue.Task) error {
			return handleIngest(ctx, deps, pipeline, task)
		})
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.Port, "ingestor")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("ingestor stopped", "err", err)
	}
}

// handleIngest runs the pipeline for one document. A successful run changes
// the searchable index, so all cached chat answers are invalidated.
func handleIngest(ctx context.Context, deps app.Deps, pipeline *ingest.Pipeline, task queue.Task) error {
	var payload ingestTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return err
	}

	if err := pipeline.Ingest(ctx, payload.DocumentID); err != nil {
		return err
	}

	if err := deps.Cache.InvalidateAnswers(ctx); err != nil {
		deps.Log.Warn("failed to invalidate chat answer cache", "err", err, "document_id", payload.DocumentID)
	}
	return nil
}
