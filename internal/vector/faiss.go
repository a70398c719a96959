//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/pkg/utils"
)

// FAISSIndex delegates search to a FAISS IndexFlatIP. FAISS labels are insertion ordinals,
// and the entries are kept alongside so the index can be saved like any other.
type FAISSIndex struct {
	index   *C.FaissIndexFlatIP
	dims    int
	metric  Metric
	entries []Entry
	mu      sync.RWMutex
}

func newFAISSIndex(dims int, metric Metric, entries []Entry, normalize bool) (*FAISSIndex, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if err := checkEntries(entries, dims); err != nil {
		return nil, err
	}

	var index *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dims)); ret != 0 {
		return nil, fmt.Errorf("create FAISS index: %s", faissLastError())
	}
	f := &FAISSIndex{index: index, dims: dims, metric: metric, entries: make([]Entry, len(entries))}

	if len(entries) > 0 {
		flat := make([]float32, len(entries)*dims)
		for i, e := range entries {
			row := flat[i*dims : (i+1)*dims]
			copy(row, e.Vector)
			if normalize {
				utils.NormalizeL2(row)
			}
			e.Vector = row
			f.entries[i] = e
		}
		if ret := C.faiss_Index_add(index, C.idx_t(len(entries)), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
			C.faiss_Index_free(index)
			return nil, fmt.Errorf("add vectors to FAISS index: %s", faissLastError())
		}
	}
	return f, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Search returns the top-k entries by inner product.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if err := checkQuery(query, f.dims); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.index == nil {
		return nil, fmt.Errorf("%w: FAISS index is closed", models.ErrIndexNotFound)
	}
	if k <= 0 || len(f.entries) == 0 {
		return nil, nil
	}
	if k > len(f.entries) {
		k = len(f.entries)
	}
	q := query
	if f.metric == MetricCosine {
		q = utils.NormalizedCopy(query)
	}

	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&q[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	hits := make([]scored, 0, k)
	for i, label := range labels {
		if label < 0 || int(label) >= len(f.entries) {
			continue
		}
		hits = append(hits, scored{ordinal: int(label), score: float64(distances[i])})
	}
	sort.SliceStable(hits, func(i, j int) bool { return better(hits[i], hits[j]) })

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ChunkID: f.entries[h.ordinal].ChunkID, Score: h.score}
	}
	return results, nil
}

// Entries returns the indexed entries in insertion order.
func (f *FAISSIndex) Entries() []Entry {
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Size returns the number of vectors in the index.
func (f *FAISSIndex) Size() int { return len(f.entries) }

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int { return f.dims }

// Metric returns the similarity metric.
func (f *FAISSIndex) Metric() Metric { return f.metric }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
