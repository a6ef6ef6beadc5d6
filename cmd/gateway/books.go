package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"book-agents/internal/app"
	"book-agents/internal/httputil"
	"book-agents/internal/recommend"
	"book-agents/internal/reviews"
	"book-agents/internal/store"
)

type createBookRequest struct {
	Title         string `json:"title" validate:"required"`
	Author        string `json:"author" validate:"required"`
	Genre         string `json:"genre"`
	YearPublished int    `json:"year_published" validate:"omitempty,gte=0"`
	Summary       string `json:"summary"`
}

type createReviewRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	ReviewText string `json:"review_text"`
	Rating     int    `json:"rating" validate:"required,gte=1,lte=5"`
}

func bookJSON(b store.Book) map[string]any {
	body := map[string]any{
		"id":             b.ID.String(),
		"title":          b.Title,
		"author":         b.Author,
		"genre":          b.Genre,
		"year_published": b.YearPublished,
		"summary":        b.Summary,
	}
	if b.AIReviewSummary != nil {
		body["ai_review_summary"] = *b.AIReviewSummary
	}
	return body
}

func reviewJSON(r store.Review) map[string]any {
	return map[string]any{
		"id":          r.ID.String(),
		"book_id":     r.BookID.String(),
		"user_id":     r.UserID.String(),
		"review_text": r.ReviewText,
		"rating":      r.Rating,
		"created_at":  r.CreatedAt,
	}
}

func createBookHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid JSON body", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		book, err := deps.Store.CreateBook(r.Context(), store.Book{
			Title:         req.Title,
			Author:        req.Author,
			Genre:         req.Genre,
			YearPublished: req.YearPublished,
			Summary:       req.Summary,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to create book", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, bookJSON(book))
	}
}

func listBooksHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.BookFilter{
			Genre:  r.URL.Query().Get("genre"),
			Author: r.URL.Query().Get("author"),
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				httputil.Fail(deps.Log, w, "invalid limit", err, http.StatusBadRequest)
				return
			}
			filter.Limit = limit
		}
		books, err := deps.Store.ListBooks(r.Context(), filter)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list books", err, http.StatusInternalServerError)
			return
		}
		out := make([]map[string]any, 0, len(books))
		for _, b := range books {
			out = append(out, bookJSON(b))
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"books": out})
	}
}

func getBookHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid book id", err, http.StatusBadRequest)
			return
		}
		book, err := deps.Store.GetBook(r.Context(), bookID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httputil.Fail(deps.Log, w, "book not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to look up book", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, bookJSON(book))
	}
}

func recommendationsHandler(deps app.Deps, rec *recommend.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "user_id query parameter is required", err, http.StatusBadRequest)
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err = strconv.Atoi(v)
			if err != nil || limit < 0 {
				httputil.Fail(deps.Log, w, "invalid limit", err, http.StatusBadRequest)
				return
			}
		}
		books, err := rec.Recommend(r.Context(), userID, limit)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to compute recommendations", err, http.StatusInternalServerError)
			return
		}
		out := make([]map[string]any, 0, len(books))
		for _, b := range books {
			out = append(out, bookJSON(b))
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"recommendations": out})
	}
}

func createReviewHandler(deps app.Deps, svc *reviews.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid book id", err, http.StatusBadRequest)
			return
		}
		var req createReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid JSON body", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid user_id", err, http.StatusBadRequest)
			return
		}
		review, err := svc.Create(r.Context(), bookID, userID, req.ReviewText, req.Rating)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httputil.Fail(deps.Log, w, "book not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to create review", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, reviewJSON(review))
	}
}

func listReviewsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid book id", err, http.StatusBadRequest)
			return
		}
		all, err := deps.Store.ListBookReviews(r.Context(), bookID)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list reviews", err, http.StatusInternalServerError)
			return
		}
		out := make([]map[string]any, 0, len(all))
		for _, rev := range all {
			out = append(out, reviewJSON(rev))
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"reviews": out})
	}
}

func deleteReviewHandler(deps app.Deps, svc *reviews.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviewID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid review id", err, http.StatusBadRequest)
			return
		}
		if err := svc.Delete(r.Context(), reviewID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httputil.Fail(deps.Log, w, "review not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to delete review", err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func reviewSummaryHandler(deps app.Deps, svc *reviews.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid book id", err, http.StatusBadRequest)
			return
		}
		summary, err := svc.Summary(r.Context(), bookID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httputil.Fail(deps.Log, w, "book not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to build review summary", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"book_id": bookID.String(),
			"summary": summary,
		})
	}
}
