package config

import (
	"time"

	"github.com/hyperjump/medibot/internal/embedding"
	"github.com/hyperjump/medibot/internal/extract"
	"github.com/hyperjump/medibot/internal/prompt"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 2 * time.Minute
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/medibot/data/index"
	}
	if cfg.Storage.DocumentsPath == "" {
		cfg.Storage.DocumentsPath = "/usr/local/var/medibot/data/documents"
	}
	applyEmbeddingDefaults(&cfg.Embedding)
	applyGenerationDefaults(&cfg.Generation)
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 500
	}
	if cfg.Chunking.Overlap == nil {
		overlap := 50
		cfg.Chunking.Overlap = &overlap
	}
	applyRetrievalDefaults(&cfg.Retrieval)
	if cfg.Prompt.Style == "" {
		cfg.Prompt.Style = string(prompt.StyleZeroShot)
	}
	if cfg.Prompt.Instructions == "" {
		cfg.Prompt.Instructions = prompt.GroundedInstructions
	}
	if cfg.Prompt.MaxLength == 0 {
		cfg.Prompt.MaxLength = 8000
	}
	if cfg.Pipeline.HistoryTurns == nil {
		turns := 5
		cfg.Pipeline.HistoryTurns = &turns
	}
	if cfg.Pipeline.EmptyContext == "" {
		cfg.Pipeline.EmptyContext = "short_circuit"
	}
	if cfg.Pipeline.MaxSessions == 0 {
		cfg.Pipeline.MaxSessions = 1000
	}
	if cfg.Pipeline.SessionTTL == 0 {
		cfg.Pipeline.SessionTTL = 30 * time.Minute
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = "cosine"
	}
	if cfg.Vector.BatchSize == 0 {
		cfg.Vector.BatchSize = 32
	}
	if cfg.Vector.Workers == 0 {
		cfg.Vector.Workers = 4
	}
	if cfg.Vector.Reuse == nil {
		t := true
		cfg.Vector.Reuse = &t
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), extract.Extensions...)
	}
	// Recursive defaults to true when unset (nil).
	if cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

func applyEmbeddingDefaults(e *EmbeddingConfig) {
	if e.Provider == "" {
		e.Provider = "onnx"
	}
	if e.Model == "" {
		switch e.Provider {
		case "ollama":
			e.Model = "all-minilm"
		case "openai":
			e.Model = "text-embedding-3-small"
		default:
			e.Model = "all-MiniLM-L6-v2"
		}
	}
	if e.Dimensions == 0 {
		if e.Provider == "openai" {
			e.Dimensions = 1536
		} else {
			e.Dimensions = 384
		}
	}
	if e.BaseURL == "" {
		switch e.Provider {
		case "ollama":
			e.BaseURL = "http://localhost:11434"
		case "openai":
			e.BaseURL = "https://api.openai.com/v1"
		}
	}
	if e.APIKeyEnv == "" && e.Provider == "openai" {
		e.APIKeyEnv = "OPENAI_API_KEY"
	}
	if e.ModelPath == "" {
		e.ModelPath = "/usr/local/var/medibot/data/models/all-MiniLM-L6-v2.onnx"
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 256
	}
	if e.Tokenizer == "" {
		e.Tokenizer = embedding.TokenizerWordPiece
	}
	if e.Pooling == "" {
		e.Pooling = embedding.PoolingMean
	}
	if e.CacheSize == 0 {
		e.CacheSize = 10000
	}
	if e.Timeout == 0 {
		e.Timeout = 30 * time.Second
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = 3
	}
	if e.RetryBackoff == 0 {
		e.RetryBackoff = 500 * time.Millisecond
	}
}

func applyGenerationDefaults(g *GenerationConfig) {
	if g.Provider == "" {
		g.Provider = "openai"
	}
	if g.Model == "" {
		switch g.Provider {
		case "ollama":
			g.Model = "llama3.1"
		case "openai":
			g.Model = "meta-llama/llama-4-maverick-17b-128e-instruct"
		}
	}
	if g.BaseURL == "" {
		switch g.Provider {
		case "ollama":
			g.BaseURL = "http://localhost:11434"
		case "openai":
			g.BaseURL = "https://api.groq.com/openai/v1"
		}
	}
	if g.APIKeyEnv == "" && g.Provider == "openai" {
		g.APIKeyEnv = "GROQ_API_KEY"
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 512
	}
	if g.Timeout == 0 {
		g.Timeout = 60 * time.Second
	}
	if g.MaxRetries == 0 {
		g.MaxRetries = 2
	}
	if g.RetryBackoff == 0 {
		g.RetryBackoff = time.Second
	}
}

func applyRetrievalDefaults(r *RetrievalConfig) {
	if r.Mode == "" {
		r.Mode = "semantic"
	}
	if r.TopK == 0 {
		r.TopK = 3
	}
	if r.MinScore == nil {
		minScore := 0.3
		r.MinScore = &minScore
	}
	if r.KeywordWeight == 0 && r.SemanticWeight == 0 {
		r.KeywordWeight = 0.3
		r.SemanticWeight = 0.7
	}
	if r.Candidates == 0 {
		r.Candidates = 20
	}
	if r.Fuzzy == nil {
		t := true
		r.Fuzzy = &t
	}
	if r.Fuzziness == 0 {
		r.Fuzziness = 1
	}
	if r.PhraseBoost == 0 {
		r.PhraseBoost = 1.5
	}
}
