// Package config provides configuration loading and structs for medibot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/medibot/internal/prompt"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Vector     VectorConfig     `yaml:"vector"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequestTimeout bounds one API request, generation included.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds the index bundle location and the document source it is built from.
type StorageConfig struct {
	IndexPath     string `yaml:"index_path"`
	DocumentsPath string `yaml:"documents_path"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv    string        `yaml:"api_key_env"`
	ModelPath    string        `yaml:"model_path"`
	LibraryPath  string        `yaml:"library_path"`
	MaxTokens    int           `yaml:"max_tokens"`
	// VocabPath defaults to vocab.txt next to the model file.
	VocabPath    string        `yaml:"vocab_path"`
	// Tokenizer is "wordpiece" or "simple"; simple hashes terms and ignores the vocabulary.
	Tokenizer    string        `yaml:"tokenizer"`
	// Pooling is "mean" for token-level model outputs or "none" for sentence-level ones.
	Pooling      string        `yaml:"pooling"`
	CacheSize    int           `yaml:"cache_size"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// VocabPathOrDefault returns the WordPiece vocabulary path.
func (e *EmbeddingConfig) VocabPathOrDefault() string {
	if e.VocabPath != "" {
		return e.VocabPath
	}
	return filepath.Join(filepath.Dir(e.ModelPath), "vocab.txt")
}

// APIKey resolves the key from the environment.
func (e *EmbeddingConfig) APIKey() string {
	return lookupKey(e.APIKeyEnv)
}

// GenerationConfig selects the language model that writes answers.
type GenerationConfig struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// APIKey resolves the key from the environment.
func (g *GenerationConfig) APIKey() string {
	return lookupKey(g.APIKeyEnv)
}

func lookupKey(env string) string {
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}

// ChunkingConfig holds chunk window settings, in characters.
type ChunkingConfig struct {
	Size    int  `yaml:"size"`
	Overlap *int `yaml:"overlap"`
}

// OverlapOrDefault returns the configured overlap, 0 when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.Overlap != nil {
		return *c.Overlap
	}
	return 0
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	// Mode is "semantic" or "hybrid".
	Mode     string   `yaml:"mode"`
	TopK     int      `yaml:"top_k"`
	MinScore *float64 `yaml:"min_score"`

	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	Candidates     int     `yaml:"candidates"`
	Fuzzy          *bool   `yaml:"fuzzy"`
	Fuzziness      int     `yaml:"fuzziness"`
	PhraseBoost    float64 `yaml:"phrase_boost"`
}

// MinScoreOrDefault returns the relevance floor, 0 when unset.
func (r *RetrievalConfig) MinScoreOrDefault() float64 {
	if r.MinScore != nil {
		return *r.MinScore
	}
	return 0
}

// PromptConfig holds prompt composition settings.
type PromptConfig struct {
	Style        string           `yaml:"style"`
	Instructions string           `yaml:"instructions"`
	Examples     []prompt.Example `yaml:"examples"`
	// MaxLength bounds the composed prompt, in characters.
	MaxLength int `yaml:"max_length"`
}

// PipelineConfig holds session and empty-context settings.
type PipelineConfig struct {
	HistoryTurns *int `yaml:"history_turns"`
	// EmptyContext is "short_circuit" or "disclaimer".
	EmptyContext string `yaml:"empty_context"`
	// MaxSessions caps the conversations kept in memory.
	MaxSessions int `yaml:"max_sessions"`
	// SessionTTL forgets conversations idle for this long.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// HistoryTurnsOrDefault returns the history cap, 0 when unset.
func (p *PipelineConfig) HistoryTurnsOrDefault() int {
	if p.HistoryTurns != nil {
		return *p.HistoryTurns
	}
	return 0
}

// VectorConfig holds vector index and build settings.
type VectorConfig struct {
	IndexType string `yaml:"index_type"`
	Metric    string `yaml:"metric"`
	BatchSize int    `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
	Reuse     *bool  `yaml:"reuse"`
}

// WatchConfig holds document directory watch settings.
type WatchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Debounce   time.Duration `yaml:"debounce"`
	Extensions []string      `yaml:"extensions"`
	Recursive  *bool         `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, expands paths, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.DocumentsPath = expandPath(cfg.Storage.DocumentsPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Embedding.LibraryPath != "" {
		cfg.Embedding.LibraryPath = expandPath(cfg.Embedding.LibraryPath, configDir)
	}
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadEnv loads KEY=value pairs from the .env file at path into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// expandPath converts a path to absolute. "~/" and paths starting with "./" or "../" are expanded
// against the home directory and configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
