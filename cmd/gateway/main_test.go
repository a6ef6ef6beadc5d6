package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"book-agents/internal/agent"
	"book-agents/internal/app"
	"book-agents/internal/cache"
	"book-agents/internal/config"
	"book-agents/internal/embeddings"
	"book-agents/internal/llm"
	"book-agents/internal/queue"
	"book-agents/internal/retrieval"
	"book-agents/internal/store"
)

func newTestDeps(t *testing.T, st store.Store, q queue.Queue, c cache.Cache) app.Deps {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return app.Deps{
		Store: st,
		Queue: q,
		Cache: c,
		Config: config.Config{
			MaxUploadSize: 1024 * 1024, // 1MB for tests
			UploadDir:     t.TempDir(),
			CacheTTL:      300,
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestUploadHandler(t *testing.T) {
	validDocID := uuid.New()
	bookID := uuid.New()

	tests := []struct {
		name          string
		filename      string
		contentType   string
		content       []byte
		bookID        string
		setup         func(*store.MockStore)
		wantStatus    int
		checkResponse func(*testing.T, *http.Response)
	}{
		{
			name:        "successful upload",
			filename:    "dune.txt",
			contentType: "text/plain",
			content:     []byte("A beginning is the time..."),
			setup: func(s *store.MockStore) {
				s.On("CreateDocument", mock.Anything, mock.MatchedBy(func(d store.Document) bool {
					return d.Filename == "dune.txt" && d.Status == store.StatusUploaded && d.FilePath != "" && d.BookID == nil
				})).Return(store.Document{ID: validDocID, Filename: "dune.txt", Status: store.StatusUploaded}, nil).Once()
			},
			wantStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result map[string]any
				if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if result["document_id"] != validDocID.String() {
					t.Errorf("Expected document_id %s, got %v", validDocID, result["document_id"])
				}
				if result["status"] != string(store.StatusUploaded) {
					t.Errorf("Expected status %s, got %v", store.StatusUploaded, result["status"])
				}
			},
		},
		{
			name:        "upload linked to a book",
			filename:    "dune.txt",
			contentType: "text/plain",
			content:     []byte("text"),
			bookID:      bookID.String(),
			setup: func(s *store.MockStore) {
				s.On("GetBook", mock.Anything, bookID).Return(store.Book{ID: bookID, Title: "Dune"}, nil).Once()
				s.On("CreateDocument", mock.Anything, mock.MatchedBy(func(d store.Document) bool {
					return d.BookID != nil && *d.BookID == bookID
				})).Return(store.Document{ID: validDocID, Status: store.StatusUploaded}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:        "unknown book",
			filename:    "dune.txt",
			contentType: "text/plain",
			content:     []byte("text"),
			bookID:      bookID.String(),
			setup: func(s *store.MockStore) {
				s.On("GetBook", mock.Anything, bookID).Return(store.Book{}, store.ErrNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:        "file too large",
			filename:    "large.txt",
			contentType: "text/plain",
			content:     make([]byte, 2*1024*1024), // 2MB
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "missing Content-Type detects from extension",
			filename:    "notes.txt",
			contentType: "",
			content:     []byte("content"),
			setup: func(s *store.MockStore) {
				s.On("CreateDocument", mock.Anything, mock.Anything).
					Return(store.Document{ID: validDocID, Status: store.StatusUploaded}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:        "unsupported extension",
			filename:    "test.docx",
			contentType: "",
			content:     []byte("content"),
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "CreateDocument failure",
			filename:    "test.txt",
			contentType: "text/plain",
			content:     []byte("content"),
			setup: func(s *store.MockStore) {
				s.On("CreateDocument", mock.Anything, mock.Anything).
					Return(store.Document{}, errors.New("db error")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockStore := new(store.MockStore)
			if tt.setup != nil {
				tt.setup(mockStore)
			}

			deps := newTestDeps(t, mockStore, new(queue.MockQueue), nil)
			handler := uploadHandler(deps)

			req, err := createMultipartRequest(tt.filename, tt.contentType, tt.content, tt.bookID)
			if err != nil {
				t.Fatalf("Failed to create request: %v", err)
			}

			w := httptest.NewRecorder()
			handler(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("Expected status %d, got %d. Body: %s", tt.wantStatus, resp.StatusCode, string(body))
			}

			if tt.checkResponse != nil {
				resp.Body = io.NopCloser(bytes.NewReader(w.Body.Bytes()))
				tt.checkResponse(t, resp)
			}

			mockStore.AssertExpectations(t)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		deps := newTestDeps(t, new(store.MockStore), new(queue.MockQueue), nil)
		handler := uploadHandler(deps)

		req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil)
		req.Header.Set("Content-Type", "multipart/form-data")
		w := httptest.NewRecorder()

		handler(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestIngestHandler(t *testing.T) {
	validDocID := uuid.New()

	tests := []struct {
		name       string
		docID      string
		setup      func(*store.MockStore, *queue.MockQueue)
		wantStatus int
	}{
		{
			name:  "successful dispatch",
			docID: validDocID.String(),
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("GetDocument", mock.Anything, validDocID).
					Return(store.Document{ID: validDocID, Status: store.StatusUploaded}, nil).Once()
				s.On("UpdateDocumentStatus", mock.Anything, validDocID, store.StatusProcessing).Return(nil).Once()
				q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
					var payload ingestTaskPayload
					return task.Type == queue.TaskTypeIngest &&
						json.Unmarshal(task.Payload, &payload) == nil &&
						payload.DocumentID == validDocID
				})).Return(nil).Once()
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "invalid UUID",
			docID:      "not-a-uuid",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "document not found",
			docID: validDocID.String(),
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("GetDocument", mock.Anything, validDocID).
					Return(store.Document{}, store.ErrNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:  "enqueue failure marks doc failed",
			docID: validDocID.String(),
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("GetDocument", mock.Anything, validDocID).
					Return(store.Document{ID: validDocID}, nil).Once()
				s.On("UpdateDocumentStatus", mock.Anything, validDocID, store.StatusProcessing).Return(nil).Once()
				q.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("queue error")).Times(3)
				s.On("UpdateDocumentStatus", mock.Anything, validDocID, store.StatusFailed).Return(nil).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockStore := new(store.MockStore)
			mockQueue := new(queue.MockQueue)
			if tt.setup != nil {
				tt.setup(mockStore, mockQueue)
			}

			deps := newTestDeps(t, mockStore, mockQueue, nil)
			handler := ingestHandler(deps)

			req := httptest.NewRequest(http.MethodPost, "/api/documents/"+tt.docID+"/ingest", nil)
			req = withURLParam(req, "id", tt.docID)

			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			mockStore.AssertExpectations(t)
			mockQueue.AssertExpectations(t)
		})
	}
}

func TestDeleteDocumentHandler(t *testing.T) {
	docID := uuid.New()

	t.Run("deletes record and invalidates cache", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockCache := new(cache.MockCache)
		mockStore.On("GetDocument", mock.Anything, docID).
			Return(store.Document{ID: docID, FilePath: "/nonexistent/file.txt"}, nil).Once()
		mockStore.On("DeleteDocument", mock.Anything, docID).Return(nil).Once()
		mockCache.On("InvalidateAnswers", mock.Anything).Return(nil).Once()

		deps := newTestDeps(t, mockStore, new(queue.MockQueue), mockCache)
		handler := deleteDocumentHandler(deps)

		req := withURLParam(httptest.NewRequest(http.MethodDelete, "/api/documents/"+docID.String(), nil), "id", docID.String())
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Expected status 204, got %d", w.Code)
		}
		mockStore.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockStore := new(store.MockStore)
		mockStore.On("GetDocument", mock.Anything, docID).Return(store.Document{}, store.ErrNotFound).Once()

		deps := newTestDeps(t, mockStore, new(queue.MockQueue), nil)
		handler := deleteDocumentHandler(deps)

		req := withURLParam(httptest.NewRequest(http.MethodDelete, "/api/documents/"+docID.String(), nil), "id", docID.String())
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

func createMultipartRequest(filename, contentType string, content []byte, bookID string) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
	if contentType != "" {
		h["Content-Type"] = []string{contentType}
	}

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if bookID != "" {
		if err := writer.WriteField("book_id", bookID); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return req, nil
}

func TestChatHandler(t *testing.T) {
	t.Run("cache hit skips the agent", func(t *testing.T) {
		mockCache := new(cache.MockCache)
		mockCache.On("GetAnswer", mock.Anything, mock.Anything).
			Return(&cache.ChatAnswer{Answer: "cached answer", Sources: []string{"Dune"}}, nil).Once()

		mockLLM := new(llm.MockClient)
		deps := newTestDeps(t, new(store.MockStore), new(queue.MockQueue), mockCache)
		ag := agent.New(mockLLM, retrieval.New(deps.Store, new(embeddings.MockEmbedder)), deps.Store, deps.Log)
		handler := chatHandler(deps, ag)

		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"question":"What is Dune about?"}`))
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}
		var result map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if result["answer"] != "cached answer" || result["cached"] != true {
			t.Errorf("Expected cached answer, got %v", result)
		}
		mockLLM.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
		mockCache.AssertExpectations(t)
	})

	t.Run("miss answers and stores", func(t *testing.T) {
		mockCache := new(cache.MockCache)
		mockCache.On("GetAnswer", mock.Anything, mock.Anything).Return(nil, nil).Once()
		mockCache.On("SetAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

		mockLLM := new(llm.MockClient)
		mockLLM.On("Complete", mock.Anything, mock.Anything).Return("NON_BOOK", nil).Once()

		deps := newTestDeps(t, new(store.MockStore), new(queue.MockQueue), mockCache)
		ag := agent.New(mockLLM, retrieval.New(deps.Store, new(embeddings.MockEmbedder)), deps.Store, deps.Log)
		handler := chatHandler(deps, ag)

		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"question":"What's the weather?"}`))
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}
		var result map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if result["cached"] != false || result["answer"] == "" {
			t.Errorf("Expected fresh answer, got %v", result)
		}
		mockCache.AssertExpectations(t)
		mockLLM.AssertExpectations(t)
	})

	t.Run("empty question rejected", func(t *testing.T) {
		deps := newTestDeps(t, new(store.MockStore), new(queue.MockQueue), nil)
		ag := agent.New(new(llm.MockClient), retrieval.New(deps.Store, new(embeddings.MockEmbedder)), deps.Store, deps.Log)
		handler := chatHandler(deps, ag)

		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"question":""}`))
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}
