//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/medibot/internal/models"
)

// ONNXConfig configures a local sentence-embedding model run through ONNX Runtime.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	Dimensions  int
	MaxTokens   int
	OutputName  string
	// VocabPath is the model's vocab.txt, required by the wordpiece tokenizer.
	VocabPath string
	// Tokenizer is TokenizerWordPiece (the default) or TokenizerSimple.
	Tokenizer string
	// Pooling is PoolingMean (the default) or PoolingNone.
	Pooling string
}

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns ErrEmbeddingUnavailable when built without CGO.
func NewONNXEmbedder(_ ONNXConfig) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: onnx embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime", models.ErrEmbeddingUnavailable)
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, models.ErrEmbeddingUnavailable
}

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, models.ErrEmbeddingUnavailable
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }
func (e *ONNXEmbedder) Model() string   { return "onnx" }
func (e *ONNXEmbedder) Close() error    { return nil }
