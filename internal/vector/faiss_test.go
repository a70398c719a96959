//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFAISSIndex_Search(t *testing.T) {
	idx, err := Build("faiss", 3, MetricCosine, entriesFrom(
		[]float32{1, 0, 0},
		[]float32{0.9, 0.1, 0},
		[]float32{0, 1, 0},
	))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ChunkID != "c0" {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestFAISSIndex_MatchesMemory(t *testing.T) {
	entries := entriesFrom([]float32{0.3, 0.1, 0.9}, []float32{0.7, 0.7, 0.1}, []float32{0.1, 0.9, 0.2})
	mem, _ := Build("memory", 3, MetricCosine, entries)
	fa, err := Build("faiss", 3, MetricCosine, entries)
	if err != nil {
		t.Fatal(err)
	}
	defer fa.Close()
	q := []float32{0.5, 0.4, 0.3}
	a, _ := mem.Search(context.Background(), q, 3)
	b, _ := fa.Search(context.Background(), q, 3)
	for i := range a {
		if a[i].ChunkID != b[i].ChunkID {
			t.Errorf("rank %d: memory %s, faiss %s", i, a[i].ChunkID, b[i].ChunkID)
		}
	}
}

func TestFAISSIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	idx, err := Build("faiss", 2, MetricInnerProduct, entriesFrom([]float32{1, 0}, []float32{0, 1}))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if err := Save(idx, path, "m"); err != nil {
		t.Fatal(err)
	}
	loaded, _, err := Load(path, Expect{})
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Close()
	if loaded.Type() != "faiss" || !reflect.DeepEqual(idx.Entries(), loaded.Entries()) {
		t.Error("faiss index did not round trip")
	}
}
