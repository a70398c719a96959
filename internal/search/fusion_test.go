package search

import (
	"fmt"
	"math"
	"testing"

	"github.com/hyperjump/medibot/internal/keyword"
	"github.com/hyperjump/medibot/internal/vector"
)

func TestNormalizeKeywordScores(t *testing.T) {
	results := []*keyword.KeywordResult{
		{ChunkID: "a", Score: 2},
		{ChunkID: "b", Score: 4},
		{ChunkID: "c", Score: 1},
	}
	m := NormalizeKeywordScores(results)
	if m["b"] != 1.0 {
		t.Errorf("max score should be 1.0, got %f", m["b"])
	}
	if m["a"] != 0.5 {
		t.Errorf("a should be 0.5, got %f", m["a"])
	}
	if len(m) != 3 {
		t.Errorf("expected 3 entries, got %d", len(m))
	}
	if len(NormalizeKeywordScores(nil)) != 0 {
		t.Error("nil input should give an empty map")
	}
}

func TestNormalizeKeywordScores_zeroMax(t *testing.T) {
	m := NormalizeKeywordScores([]*keyword.KeywordResult{{ChunkID: "a", Score: 0}})
	if m["a"] != 0 {
		t.Errorf("zero max should map to 0, got %f", m["a"])
	}
}

func TestSemanticScores(t *testing.T) {
	m := SemanticScores([]vector.Result{{ChunkID: "c1", Score: 0.9}, {ChunkID: "c2", Score: 0.5}})
	if m["c1"] != 0.9 || m["c2"] != 0.5 {
		t.Errorf("unexpected map %v", m)
	}
}

func TestFuse(t *testing.T) {
	kw := map[string]float64{"c1": 1.0, "c2": 0.5}
	sem := map[string]float64{"c1": 0.5, "c2": 1.0, "c3": 0.2}
	results := Fuse(kw, sem, 0.3, 0.7)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ChunkID != "c2" {
		t.Errorf("c2 should rank first, got %s", results[0].ChunkID)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Score < results[i].Score {
			t.Error("results should be sorted by score descending")
		}
	}
	want := 0.3*0.5 + 0.7*1.0
	if math.Abs(results[0].Score-want) > 1e-12 || results[0].KeywordScore != 0.5 || results[0].SemanticScore != 1.0 {
		t.Errorf("c2 = %+v, want score %f", results[0], want)
	}
}

func TestFuse_tiesAreDeterministic(t *testing.T) {
	kw := map[string]float64{"b": 1, "a": 1}
	for i := 0; i < 20; i++ {
		results := Fuse(kw, nil, 1, 0)
		if results[0].ChunkID != "a" || results[1].ChunkID != "b" {
			t.Fatalf("tie order %s, %s", results[0].ChunkID, results[1].ChunkID)
		}
	}
}

func BenchmarkFuse(b *testing.B) {
	kw := make(map[string]float64)
	sem := make(map[string]float64)
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("chunk-%d", i)
		kw[id] = float64(i) / 100
		sem[id] = float64(100-i) / 100
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Fuse(kw, sem, 0.3, 0.7)
	}
}
