package embedding

import (
	"context"
	"fmt"
)

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint, one request per batch.
type OllamaEmbedder struct {
	http *httpClient
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedder.
func NewOllamaEmbedder(cfg HTTPConfig) (*OllamaEmbedder, error) {
	if err := cfg.validate("ollama"); err != nil {
		return nil, err
	}
	return &OllamaEmbedder{http: newHTTPClient(cfg)}, nil
}

// Embed returns the embedding for one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch embeds texts in a single request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var out ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: e.http.cfg.Model, Input: texts}
	if err := e.http.postJSON(ctx, "/api/embed", req, &out); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if err := checkBatch(out.Embeddings, len(texts), e.Dimensions()); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return out.Embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int { return e.http.cfg.Dimensions }

// Model returns the Ollama model name.
func (e *OllamaEmbedder) Model() string { return "ollama/" + e.http.cfg.Model }

// Close is a no-op.
func (e *OllamaEmbedder) Close() error { return nil }
