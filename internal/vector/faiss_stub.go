//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/medibot/internal/models"
)

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

func newFAISSIndex(int, Metric, []Entry, bool) (*FAISSIndex, error) {
	return nil, fmt.Errorf("%w: FAISS not available: build with -tags=faiss and install the FAISS library", models.ErrInvalidParameter)
}

// Search is not implemented without FAISS.
func (f *FAISSIndex) Search(context.Context, []float32, int) ([]Result, error) {
	return nil, fmt.Errorf("FAISS not available")
}

func (f *FAISSIndex) Entries() []Entry { return nil }
func (f *FAISSIndex) Size() int        { return 0 }
func (f *FAISSIndex) Dimensions() int  { return 0 }
func (f *FAISSIndex) Metric() Metric   { return "" }
func (f *FAISSIndex) Type() string     { return string(IndexTypeFAISS) }
func (f *FAISSIndex) Close() error     { return nil }
