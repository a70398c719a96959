// Package embedding maps text to fixed-dimension vectors through local or remote models.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/medibot/internal/models"
)

// Embedder produces vector embeddings for text. EmbedBatch returns one vector per input, in input order.
// For a fixed model the same text always yields the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Close() error
}

// checkBatch verifies a provider response has one vector of the expected dimension per input.
func checkBatch(vectors [][]float32, n, dims int) error {
	if len(vectors) != n {
		return fmt.Errorf("%w: provider returned %d vectors for %d inputs", models.ErrEmbeddingUnavailable, len(vectors), n)
	}
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", models.ErrDimensionMismatch, i, len(v), dims)
		}
	}
	return nil
}

// embedOne embeds a single text through a batch call.
func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
