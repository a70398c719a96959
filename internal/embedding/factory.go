package embedding

import (
	"fmt"
	"time"

	"github.com/hyperjump/medibot/internal/models"
	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderHash   = "hash"
	ProviderONNX   = "onnx"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects and configures an embedding provider. Every field is explicit; defaults live in the config layer.
type Config struct {
	Provider     string
	Model        string
	Dimensions   int
	BaseURL      string
	APIKey       string
	ModelPath    string
	LibraryPath  string
	MaxTokens    int
	VocabPath    string
	Tokenizer    string
	Pooling      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	CacheSize    int
}

// New creates the embedder named by cfg.Provider, wrapped in an LRU cache when CacheSize > 0.
func New(cfg Config, logger *zap.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	httpCfg := HTTPConfig{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		Dimensions:   cfg.Dimensions,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	}
	switch cfg.Provider {
	case ProviderHash:
		e, err = NewHashEmbedder(cfg.Dimensions)
	case ProviderONNX:
		e, err = NewONNXEmbedder(ONNXConfig{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			Dimensions:  cfg.Dimensions,
			MaxTokens:   cfg.MaxTokens,
			VocabPath:   cfg.VocabPath,
			Tokenizer:   cfg.Tokenizer,
			Pooling:     cfg.Pooling,
		})
	case ProviderOllama:
		e, err = NewOllamaEmbedder(httpCfg)
	case ProviderOpenAI:
		e, err = NewOpenAIEmbedder(httpCfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidParameter, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
