package llm

import (
	"context"
	"errors"
)

// ErrProvider marks transport/auth/rate-limit failures of the language model provider.
var ErrProvider = errors.New("llm provider failure")

// Client is a minimal LLM interface to allow pluggable providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
