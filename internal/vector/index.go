// Package vector provides immutable nearest-neighbor indexes over chunk embeddings and their persistence.
package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/medibot/internal/models"
)

// Metric is the similarity function an index ranks by. It is fixed for the index's lifetime.
type Metric string

const (
	// MetricCosine normalizes stored and query vectors, so scores are cosine similarities in [-1, 1].
	MetricCosine Metric = "cosine"
	// MetricInnerProduct ranks by the raw inner product.
	MetricInnerProduct Metric = "inner_product"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricInnerProduct:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q (supported: cosine, inner_product)", models.ErrInvalidParameter, s)
	}
}

// EntryMetadata locates the chunk an entry was embedded from.
type EntryMetadata struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Page       int    `json:"page,omitempty"`
	Ordinal    int    `json:"ordinal"`
}

// Entry is one indexed vector.
type Entry struct {
	ChunkID  string
	Vector   []float32
	Metadata EntryMetadata
}

// Result is a single search hit.
type Result struct {
	ChunkID string
	Score   float64
}

// Index is a built, read-only vector index. Search is safe for concurrent use.
// Results are ordered by descending score; equal scores keep insertion order.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	// Entries returns the indexed entries in insertion order, with vectors as stored.
	Entries() []Entry
	Size() int
	Dimensions() int
	Metric() Metric
	Type() string
	Close() error
}

func checkQuery(query []float32, dims int) error {
	if len(query) != dims {
		return fmt.Errorf("%w: query has %d dimensions, index has %d", models.ErrDimensionMismatch, len(query), dims)
	}
	return nil
}

func checkEntries(entries []Entry, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", models.ErrInvalidParameter, dims)
	}
	for i, e := range entries {
		if len(e.Vector) != dims {
			return fmt.Errorf("%w: entry %d (%s) has %d dimensions, index has %d",
				models.ErrDimensionMismatch, i, e.ChunkID, len(e.Vector), dims)
		}
	}
	return nil
}
