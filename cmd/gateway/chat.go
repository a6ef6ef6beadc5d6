package main

import (
	"encoding/json"
	"net/http"
	"time"

	"book-agents/internal/agent"
	"book-agents/internal/app"
	"book-agents/internal/cache"
	"book-agents/internal/httputil"
)

type chatRequest struct {
	Question string       `json:"question" validate:"required,min=1"`
	History  []agent.Turn `json:"history" validate:"max=20"`
}

// chatKey folds the question and conversation history into one cache key, so
// the same question with different context never collides.
func chatKey(req chatRequest) string {
	parts := make([]string, 0, 1+2*len(req.History))
	parts = append(parts, req.Question)
	for _, t := range req.History {
		parts = append(parts, t.Role, t.Content)
	}
	return cache.Key(parts...)
}

func chatHandler(deps app.Deps, ag *agent.Agent) http.HandlerFunc {
	ttl := time.Duration(deps.Config.CacheTTL) * time.Second

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid JSON body", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		key := chatKey(req)
		if cached, err := deps.Cache.GetAnswer(ctx, key); err != nil {
			deps.Log.Warn("chat cache lookup failed", "err", err)
		} else if cached != nil {
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"answer":  cached.Answer,
				"sources": cached.Sources,
				"cached":  true,
			})
			return
		}

		answer, sources, err := ag.Answer(ctx, req.Question, req.History)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to answer question", err, http.StatusInternalServerError)
			return
		}
		// Degraded answers come back with nil sources; don't pin them in the
		// cache for the full TTL.
		if sources != nil {
			if err := deps.Cache.SetAnswer(ctx, key, &cache.ChatAnswer{Answer: answer, Sources: sources}, ttl); err != nil {
				deps.Log.Warn("chat cache store failed", "err", err)
			}
		} else {
			sources = []string{}
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"answer":  answer,
			"sources": sources,
			"cached":  false,
		})
	}
}
