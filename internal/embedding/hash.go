package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/pkg/utils"
)

// HashEmbedder is a deterministic offline embedder using signed feature hashing of lowercase terms.
// Texts sharing terms get similar vectors, which makes it usable for tests and air-gapped indexes.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder producing vectors of the given dimensions.
func NewHashEmbedder(dimensions int) (*HashEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", models.ErrInvalidParameter, dimensions)
	}
	return &HashEmbedder{dimensions: dimensions}, nil
}

// Embed returns the unit-length hashed term vector of text. Text without terms maps to the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, term := range Terms(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		if sum&(1<<63) != 0 {
			emb[idx]--
		} else {
			emb[idx]++
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Model identifies the hashing scheme and dimension, so indexes built with another size are rejected.
func (e *HashEmbedder) Model() string {
	return fmt.Sprintf("hash-fnv64a-%d", e.dimensions)
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
