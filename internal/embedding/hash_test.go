package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/vector"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e, err := NewHashEmbedder(64)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	a, _ := e.Embed(ctx, "Aspirin dosage for adults")
	b, _ := e.Embed(ctx, "Aspirin dosage for adults")
	if len(a) != 64 {
		t.Fatalf("len = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text produced different vectors")
		}
	}
	var norm float64
	for _, v := range a {
		norm += float64(v * v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", norm)
	}
}

func TestHashEmbedder_LexicalSimilarity(t *testing.T) {
	e, _ := NewHashEmbedder(256)
	ctx := context.Background()
	vs, err := e.EmbedBatch(ctx, []string{
		"recommended dose of aspirin for adults",
		"Aspirin dosage for adults is 325 mg every 4 hours.",
		"Insulin is stored in the refrigerator.",
	})
	if err != nil {
		t.Fatal(err)
	}
	related := vector.InnerProduct(vs[0], vs[1])
	unrelated := vector.InnerProduct(vs[0], vs[2])
	if related <= unrelated {
		t.Errorf("related=%v should exceed unrelated=%v", related, unrelated)
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e, _ := NewHashEmbedder(8)
	v, err := e.Embed(context.Background(), "  ,, ")
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestNewHashEmbedder_InvalidDimensions(t *testing.T) {
	if _, err := NewHashEmbedder(0); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestHashEmbedder_Cancelled(t *testing.T) {
	e, _ := NewHashEmbedder(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EmbedBatch(ctx, []string{"x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func BenchmarkHashEmbedder_Embed(b *testing.B) {
	e, _ := NewHashEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "What is the recommended dose of aspirin for fever?")
	}
}
