package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache provides chat answer caching.
type Cache interface {
	// GetAnswer retrieves a cached chat answer by key.
	// Returns nil if not found.
	GetAnswer(ctx context.Context, key string) (*ChatAnswer, error)

	// SetAnswer stores a chat answer with TTL.
	SetAnswer(ctx context.Context, key string, answer *ChatAnswer, ttl time.Duration) error

	// InvalidateAnswers drops all cached answers. Called after ingestion
	// changes the index, since any cached answer may now be stale.
	InvalidateAnswers(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

// ChatAnswer is a cached chat response.
type ChatAnswer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Key derives a stable cache key from the query and recent history.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
