package vector

import (
	"fmt"

	"github.com/hyperjump/medibot/internal/models"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search. Good for small datasets (<100k vectors).
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses a FAISS flat index. Requires the FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// Build creates a fresh index of the given type from entries.
// Every entry vector must have dims components.
func Build(indexType string, dims int, metric Metric, entries []Entry) (Index, error) {
	return build(indexType, dims, metric, entries, metric == MetricCosine)
}

// build optionally skips normalization, for vectors restored from a saved index.
func build(indexType string, dims int, metric Metric, entries []Entry, normalize bool) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return newMemoryIndex(dims, metric, entries, normalize)
	case IndexTypeFAISS:
		return newFAISSIndex(dims, metric, entries, normalize)
	default:
		return nil, fmt.Errorf("%w: unknown index type %q (supported: memory, faiss)", models.ErrInvalidParameter, indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := newFAISSIndex(1, MetricInnerProduct, nil, false)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
