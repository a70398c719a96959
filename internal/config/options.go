package config

import (
	"github.com/hyperjump/medibot/internal/embedding"
	"github.com/hyperjump/medibot/internal/generation"
	"github.com/hyperjump/medibot/internal/indexer"
	"github.com/hyperjump/medibot/internal/keyword"
	"github.com/hyperjump/medibot/internal/pipeline"
	"github.com/hyperjump/medibot/internal/prompt"
	"github.com/hyperjump/medibot/internal/search"
	"github.com/hyperjump/medibot/internal/vector"
)

// EmbeddingOptions returns the embedder construction settings, API key resolved.
func (c *Config) EmbeddingOptions() embedding.Config {
	e := c.Embedding
	return embedding.Config{
		Provider:     e.Provider,
		Model:        e.Model,
		Dimensions:   e.Dimensions,
		BaseURL:      e.BaseURL,
		APIKey:       e.APIKey(),
		ModelPath:    e.ModelPath,
		LibraryPath:  e.LibraryPath,
		MaxTokens:    e.MaxTokens,
		VocabPath:    e.VocabPathOrDefault(),
		Tokenizer:    e.Tokenizer,
		Pooling:      e.Pooling,
		Timeout:      e.Timeout,
		MaxRetries:   e.MaxRetries,
		RetryBackoff: e.RetryBackoff,
		CacheSize:    e.CacheSize,
	}
}

// GenerationOptions returns the generator construction settings, API key resolved.
func (c *Config) GenerationOptions() generation.Config {
	g := c.Generation
	return generation.Config{
		Provider:     g.Provider,
		Model:        g.Model,
		BaseURL:      g.BaseURL,
		APIKey:       g.APIKey(),
		Temperature:  g.Temperature,
		MaxTokens:    g.MaxTokens,
		Timeout:      g.Timeout,
		MaxRetries:   g.MaxRetries,
		RetryBackoff: g.RetryBackoff,
	}
}

// IndexerOptions returns the build settings. Hybrid retrieval needs the keyword index, so it is built then.
func (c *Config) IndexerOptions() indexer.Options {
	return indexer.Options{
		ChunkSize:    c.Chunking.Size,
		ChunkOverlap: c.Chunking.OverlapOrDefault(),
		IndexType:    c.Vector.IndexType,
		Metric:       vector.Metric(c.Vector.Metric),
		BatchSize:    c.Vector.BatchSize,
		Workers:      c.Vector.Workers,
		Keyword:      c.Retrieval.Mode == string(search.ModeHybrid),
		Reuse:        c.Vector.Reuse == nil || *c.Vector.Reuse,
	}
}

// Expect describes the bundle an embedder with model name model can query.
func (c *Config) Expect(model string) vector.Expect {
	return vector.Expect{
		Dimensions: c.Embedding.Dimensions,
		Metric:     vector.Metric(c.Vector.Metric),
		Model:      model,
		IndexType:  c.Vector.IndexType,
	}
}

// RetrieverOptions returns the retrieval settings.
func (c *Config) RetrieverOptions() search.Options {
	r := c.Retrieval
	return search.Options{
		Mode:           search.Mode(r.Mode),
		KeywordWeight:  r.KeywordWeight,
		SemanticWeight: r.SemanticWeight,
		Candidates:     r.Candidates,
		Keyword: keyword.SearchOptions{
			PhraseBoost:  r.PhraseBoost,
			FuzzyEnabled: r.Fuzzy == nil || *r.Fuzzy,
			Fuzziness:    r.Fuzziness,
		},
	}
}

// ComposerOptions returns the prompt settings.
func (c *Config) ComposerOptions() prompt.Options {
	return prompt.Options{
		Style:        prompt.Style(c.Prompt.Style),
		Examples:     c.Prompt.Examples,
		Instructions: c.Prompt.Instructions,
		MinScore:     c.Retrieval.MinScoreOrDefault(),
	}
}

// PipelineOptions returns the orchestrator settings.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		TopK:            c.Retrieval.TopK,
		MinScore:        c.Retrieval.MinScoreOrDefault(),
		MaxPromptLength: c.Prompt.MaxLength,
		HistoryTurns:    c.Pipeline.HistoryTurnsOrDefault(),
		EmptyContext:    pipeline.EmptyContextPolicy(c.Pipeline.EmptyContext),
		Sessions: pipeline.SessionLimits{
			MaxSessions: c.Pipeline.MaxSessions,
			IdleTTL:     c.Pipeline.SessionTTL,
		},
	}
}
