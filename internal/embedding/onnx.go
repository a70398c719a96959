//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
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

// ONNXEmbedder runs a BERT-style model locally. It requires CGO and the onnxruntime shared library.
// Inference is serialized because the session reuses pre-allocated tensors.
type ONNXEmbedder struct {
	cfg                 ONNXConfig
	session             *ort.AdvancedSession
	tokenizer           Tokenizer
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXEmbedder loads the model and allocates its tensors.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" || cfg.Dimensions <= 0 || cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: onnx embedder needs model path, dimensions and max tokens", models.ErrInvalidParameter)
	}
	if cfg.Pooling == "" {
		cfg.Pooling = PoolingMean
	}
	if err := validPooling(cfg.Pooling); err != nil {
		return nil, err
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
		if cfg.Pooling == PoolingNone {
			cfg.OutputName = "sentence_embedding"
		}
	}
	tokenizer, err := newTokenizer(cfg.Tokenizer, cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize onnx runtime: %v", models.ErrEmbeddingUnavailable, err)
		}
	}

	e := &ONNXEmbedder{cfg: cfg, tokenizer: tokenizer}
	if err := e.allocate(); err != nil {
		e.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	return e, nil
}

func (e *ONNXEmbedder) allocate() error {
	shape := ort.NewShape(1, int64(e.cfg.MaxTokens))
	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize("", e.cfg.MaxTokens)

	var err error
	if e.inputIDsTensor, err = ort.NewTensor(shape, inputIDs); err != nil {
		return fmt.Errorf("create input_ids tensor: %w", err)
	}
	if e.attentionMaskTensor, err = ort.NewTensor(shape, attentionMask); err != nil {
		return fmt.Errorf("create attention_mask tensor: %w", err)
	}
	if e.tokenTypeIDsTensor, err = ort.NewTensor(shape, tokenTypeIDs); err != nil {
		return fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	outShape := ort.NewShape(1, int64(e.cfg.Dimensions))
	if e.cfg.Pooling == PoolingMean {
		outShape = ort.NewShape(1, int64(e.cfg.MaxTokens), int64(e.cfg.Dimensions))
	}
	if e.outputTensor, err = ort.NewEmptyTensor[float32](outShape); err != nil {
		return fmt.Errorf("create output tensor: %w", err)
	}
	e.session, err = ort.NewAdvancedSession(
		e.cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{e.cfg.OutputName},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attentionMaskTensor, e.tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{e.outputTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("create onnx session for %s: %w", e.cfg.ModelPath, err)
	}
	return nil
}

// Embed returns the L2-normalized embedding of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, fmt.Errorf("%w: onnx embedder is closed", models.ErrEmbeddingUnavailable)
	}
	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize(text, e.cfg.MaxTokens)
	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	copy(e.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx inference: %v", models.ErrEmbeddingUnavailable, err)
	}

	var embedding []float32
	if e.cfg.Pooling == PoolingMean {
		embedding = meanPool(e.outputTensor.GetData(), attentionMask, e.cfg.Dimensions)
	} else {
		embedding = make([]float32, e.cfg.Dimensions)
		copy(embedding, e.outputTensor.GetData())
	}
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Model returns the model file name without extension.
func (e *ONNXEmbedder) Model() string {
	base := filepath.Base(e.cfg.ModelPath)
	return "onnx/" + strings.TrimSuffix(base, filepath.Ext(base))
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.inputIDsTensor, e.attentionMaskTensor, e.tokenTypeIDsTensor} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
	}
	e.inputIDsTensor, e.attentionMaskTensor, e.tokenTypeIDsTensor, e.outputTensor = nil, nil, nil, nil
	return err
}
