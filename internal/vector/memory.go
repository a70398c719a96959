package vector

import (
	"context"

	"github.com/hyperjump/medibot/pkg/utils"
)

// MemoryIndex is an exact brute-force index over a contiguous row-major matrix.
// It is immutable after construction, so searches need no locking.
type MemoryIndex struct {
	dims    int
	metric  Metric
	matrix  []float32
	entries []Entry
}

// NewMemoryIndex builds an index from entries. With MetricCosine the stored vectors are normalized copies.
func NewMemoryIndex(dims int, metric Metric, entries []Entry) (*MemoryIndex, error) {
	return newMemoryIndex(dims, metric, entries, metric == MetricCosine)
}

func newMemoryIndex(dims int, metric Metric, entries []Entry, normalize bool) (*MemoryIndex, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if err := checkEntries(entries, dims); err != nil {
		return nil, err
	}
	m := &MemoryIndex{
		dims:    dims,
		metric:  metric,
		matrix:  make([]float32, len(entries)*dims),
		entries: make([]Entry, len(entries)),
	}
	for i, e := range entries {
		row := m.matrix[i*dims : (i+1)*dims]
		copy(row, e.Vector)
		if normalize {
			utils.NormalizeL2(row)
		}
		e.Vector = row
		m.entries[i] = e
	}
	return m, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Search returns the k highest-scoring entries for query.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if err := checkQuery(query, m.dims); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	if k > len(m.entries) {
		k = len(m.entries)
	}
	q := query
	if m.metric == MetricCosine {
		q = utils.NormalizedCopy(query)
	}

	h := make(topK, 0, k)
	for i := range m.entries {
		row := m.matrix[i*m.dims : (i+1)*m.dims]
		h.offer(scored{ordinal: i, score: InnerProduct(q, row)}, k)
	}
	best := h.sorted()
	results := make([]Result, len(best))
	for i, s := range best {
		results[i] = Result{ChunkID: m.entries[s.ordinal].ChunkID, Score: s.score}
	}
	return results, nil
}

// Entries returns the indexed entries in insertion order.
func (m *MemoryIndex) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	return len(m.entries)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dims
}

// Metric returns the similarity metric.
func (m *MemoryIndex) Metric() Metric {
	return m.metric
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
