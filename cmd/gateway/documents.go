package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"book-agents/internal/app"
	"book-agents/internal/httputil"
	"book-agents/internal/queue"
	"book-agents/internal/store"
)

type ingestTaskPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Validate file size before parsing
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		contentType := header.Header.Get("Content-Type")

		// If Content-Type is missing, detect from filename
		if contentType == "" {
			ext := strings.ToLower(filepath.Ext(header.Filename))
			switch ext {
			case ".txt":
				contentType = "text/plain"
			case ".pdf":
				contentType = "application/pdf"
			default:
				httputil.Fail(deps.Log, w, "unsupported file type (only PDF and TXT allowed)", nil, http.StatusBadRequest)
				return
			}
		}

		allowedTypes := map[string]bool{
			"text/plain":      true,
			"application/pdf": true,
		}
		if !allowedTypes[contentType] {
			httputil.Fail(deps.Log, w, "unsupported file type (only PDF and TXT allowed)", nil, http.StatusBadRequest)
			return
		}

		// Optional link to a catalog book; chunk metadata inherits its fields.
		var bookID *uuid.UUID
		if v := r.FormValue("book_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				httputil.Fail(deps.Log, w, "invalid book_id", err, http.StatusBadRequest)
				return
			}
			if _, err := deps.Store.GetBook(ctx, id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					httputil.Fail(deps.Log, w, "book not found", err, http.StatusNotFound)
					return
				}
				httputil.Fail(deps.Log, w, "failed to look up book", err, http.StatusInternalServerError)
				return
			}
			bookID = &id
		}

		if err := os.MkdirAll(deps.Config.UploadDir, 0o755); err != nil {
			httputil.Fail(deps.Log, w, "failed to prepare upload directory", err, http.StatusInternalServerError)
			return
		}
		filename := filepath.Base(header.Filename)
		filePath := filepath.Join(deps.Config.UploadDir, uuid.New().String()+"_"+filename)
		dst, err := os.Create(filePath)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to save file", err, http.StatusInternalServerError)
			return
		}
		if _, err := io.Copy(dst, file); err != nil {
			dst.Close()
			httputil.Fail(deps.Log, w, "failed to save file", err, http.StatusInternalServerError)
			return
		}
		if err := dst.Close(); err != nil {
			httputil.Fail(deps.Log, w, "failed to save file", err, http.StatusInternalServerError)
			return
		}

		doc, err := deps.Store.CreateDocument(ctx, store.Document{
			BookID:   bookID,
			Filename: filename,
			FilePath: filePath,
			Status:   store.StatusUploaded,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist document", err, http.StatusInternalServerError)
			return
		}

		httputil.WriteJSON(w, http.StatusCreated, map[string]any{
			"document_id": doc.ID.String(),
			"filename":    doc.Filename,
			"status":      doc.Status,
		})
	}
}

func ingestHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		docID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid document id", err, http.StatusBadRequest)
			return
		}
		if _, err := deps.Store.GetDocument(ctx, docID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httputil.Fail(deps.Log, w, "document not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to look up document", err, http.StatusInternalServerError)
			return
		}

		if err := deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusProcessing); err != nil {
			httputil.Fail(deps.Log, w, "failed to update document status", err, http.StatusInternalServerError)
			return
		}

		body, err := json.Marshal(ingestTaskPayload{DocumentID: docID})
		if err != nil {
			fail(deps, ctx, w, "marshal payload failed", err, docID, http.StatusInternalServerError, true)
			return
		}
		task := queue.Task{Type: queue.TaskTypeIngest, Payload: body}
		if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
			fail(deps, ctx, w, "failed to enqueue document; please retry", err, docID, http.StatusInternalServerError, true)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"document_id": docID.String(),
			"status":      store.StatusProcessing,
		})
	}
}

// fail is a gateway-specific error handler that can mark documents as failed.
func fail(deps app.Deps, ctx context.Context, w http.ResponseWriter, message string, err error, docID uuid.UUID, status int, markFailed bool) {
	log := deps.Log.With("document_id", docID)
	if markFailed && docID != uuid.Nil {
		if upErr := deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); upErr != nil {
			log.Error("failed to mark document failed", "err", upErr)
		}
	}

	httputil.Fail(log, w, message, err, status)
}

func listDocumentsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments(r.Context())
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list documents", err, http.StatusInternalServerError)
			return
		}
		out := make([]map[string]any, 0, len(docs))
		for _, d := range docs {
			item := map[string]any{
				"document_id": d.ID.String(),
				"filename":    d.Filename,
				"status":      d.Status,
				"upload_date": d.UploadDate,
			}
			if d.BookID != nil {
				item["book_id"] = d.BookID.String()
			}
			out = append(out, item)
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": out})
	}
}

func deleteDocumentHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		docID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid document id", err, http.StatusBadRequest)
			return
		}
		doc, err := deps.Store.GetDocument(ctx, docID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httputil.Fail(deps.Log, w, "document not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to look up document", err, http.StatusInternalServerError)
			return
		}
		if err := deps.Store.DeleteDocument(ctx, docID); err != nil {
			httputil.Fail(deps.Log, w, "failed to delete document", err, http.StatusInternalServerError)
			return
		}
		if doc.FilePath != "" {
			if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
				deps.Log.Warn("failed to remove uploaded file", "err", err, "path", doc.FilePath)
			}
		}
		// Chunks are gone with the document; cached answers may cite them.
		if err := deps.Cache.InvalidateAnswers(ctx); err != nil {
			deps.Log.Warn("failed to invalidate chat answer cache", "err", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
