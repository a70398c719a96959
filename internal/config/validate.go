package config

import (
	"fmt"

	"github.com/hyperjump/medibot/internal/embedding"
	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/vector"
)

// Validate rejects settings no component could run with. Call after ApplyDefaults.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Embedding.Dimensions <= 0 {
		return invalid("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if t := c.Embedding.Tokenizer; t != embedding.TokenizerWordPiece && t != embedding.TokenizerSimple {
		return invalid("embedding.tokenizer must be wordpiece or simple, got %q", t)
	}
	if p := c.Embedding.Pooling; p != embedding.PoolingMean && p != embedding.PoolingNone {
		return invalid("embedding.pooling must be mean or none, got %q", p)
	}
	if c.Generation.Timeout <= 0 {
		return invalid("generation.timeout must be positive, got %s", c.Generation.Timeout)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return invalid("generation.temperature must be between 0 and 2, got %g", c.Generation.Temperature)
	}

	overlap := c.Chunking.OverlapOrDefault()
	if c.Chunking.Size <= 0 {
		return invalid("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if overlap < 0 || overlap >= c.Chunking.Size {
		return invalid("chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, overlap)
	}

	r := c.Retrieval
	if r.Mode != "semantic" && r.Mode != "hybrid" {
		return invalid("retrieval.mode must be semantic or hybrid, got %q", r.Mode)
	}
	if r.TopK <= 0 {
		return invalid("retrieval.top_k must be positive, got %d", r.TopK)
	}
	if ms := r.MinScoreOrDefault(); ms < -1 || ms > 1 {
		return invalid("retrieval.min_score must be between -1 and 1, got %g", ms)
	}
	if r.KeywordWeight < 0 || r.SemanticWeight < 0 {
		return invalid("retrieval weights cannot be negative")
	}
	if r.Fuzziness < 0 || r.Fuzziness > 2 {
		return invalid("retrieval.fuzziness must be 0, 1 or 2, got %d", r.Fuzziness)
	}

	switch c.Prompt.Style {
	case "zero-shot":
	case "few-shot":
		if len(c.Prompt.Examples) == 0 {
			return invalid("prompt.style few-shot needs prompt.examples")
		}
	default:
		return invalid("prompt.style must be zero-shot or few-shot, got %q", c.Prompt.Style)
	}
	if c.Prompt.MaxLength <= 0 {
		return invalid("prompt.max_length must be positive, got %d", c.Prompt.MaxLength)
	}

	if c.Pipeline.HistoryTurnsOrDefault() < 0 {
		return invalid("pipeline.history_turns cannot be negative")
	}
	if c.Pipeline.EmptyContext != "short_circuit" && c.Pipeline.EmptyContext != "disclaimer" {
		return invalid("pipeline.empty_context must be short_circuit or disclaimer, got %q", c.Pipeline.EmptyContext)
	}
	if c.Pipeline.MaxSessions < 0 || c.Pipeline.SessionTTL < 0 {
		return invalid("pipeline.max_sessions and pipeline.session_ttl cannot be negative")
	}

	if _, err := vector.ParseMetric(c.Vector.Metric); err != nil {
		return err
	}
	if c.Vector.BatchSize <= 0 || c.Vector.Workers <= 0 {
		return invalid("vector.batch_size and vector.workers must be positive")
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{models.ErrInvalidParameter}, args...)...)
}
