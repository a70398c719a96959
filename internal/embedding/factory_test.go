package embedding

import (
	"errors"
	"testing"

	"github.com/hyperjump/medibot/internal/models"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	e, err := New(Config{Provider: ProviderHash, Dimensions: 16, CacheSize: 4}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", e)
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}

	e, err = New(Config{Provider: ProviderHash, Dimensions: 16}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*HashEmbedder); !ok {
		t.Errorf("expected bare hash embedder without cache, got %T", e)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "word2vec", Dimensions: 8}, nil); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}
