package generation

import (
	"fmt"
	"time"

	"github.com/hyperjump/medibot/internal/models"
	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderOllama     = "ollama"
	ProviderOpenAI     = "openai"
	ProviderExtractive = "extractive"
)

// Config selects and configures a generation provider. Every field is explicit; defaults live in the config layer.
type Config struct {
	Provider     string
	Model        string
	BaseURL      string
	APIKey       string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// New creates the generator named by cfg.Provider.
func New(cfg Config, logger *zap.Logger) (Generator, error) {
	httpCfg := HTTPConfig{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	}
	var (
		g   Generator
		err error
	)
	switch cfg.Provider {
	case ProviderOllama:
		g, err = NewOllamaGenerator(httpCfg)
	case ProviderOpenAI:
		g, err = NewOpenAIGenerator(httpCfg)
	case ProviderExtractive:
		g = NewExtractiveGenerator()
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", models.ErrInvalidParameter, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}
