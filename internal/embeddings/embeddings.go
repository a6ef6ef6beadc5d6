package embeddings

import (
	"context"
	"errors"
	"math"
)

// ErrProvider marks transport/auth/rate-limit failures of the embedding provider.
var ErrProvider = errors.New("embedding provider failure")

// Vector is a fixed-dimension embedding.
type Vector []float32

// Embedder defines the embedding interface.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// L2Distance returns the Euclidean distance between two vectors.
// Mismatched dimensions compare only the shared prefix; callers are expected
// to keep all vectors at the configured dimension.
func L2Distance(a, b Vector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Mean returns the element-wise arithmetic mean of the given vectors.
// Returns nil for an empty input.
func Mean(vectors []Vector) Vector {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	acc := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			acc[i] += float64(v[i])
		}
	}
	out := make(Vector, dim)
	for i, s := range acc {
		out[i] = float32(s / float64(len(vectors)))
	}
	return out
}
