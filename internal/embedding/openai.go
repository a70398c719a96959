package embedding

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/medibot/internal/models"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint, one request per batch.
type OpenAIEmbedder struct {
	http *httpClient
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedder. An API key is required.
func NewOpenAIEmbedder(cfg HTTPConfig) (*OpenAIEmbedder, error) {
	if err := cfg.validate("openai"); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai embedder requires an API key", models.ErrEmbeddingUnavailable)
	}
	return &OpenAIEmbedder{http: newHTTPClient(cfg)}, nil
}

// Embed returns the embedding for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch embeds texts in a single request. Results are reordered by the response's index field.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var out openAIEmbedResponse
	req := openAIEmbedRequest{Model: e.http.cfg.Model, Input: texts}
	if err := e.http.postJSON(ctx, "/embeddings", req, &out); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	if err := checkBatch(vectors, len(texts), e.Dimensions()); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	return vectors, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.http.cfg.Dimensions }

// Model returns the provider model name.
func (e *OpenAIEmbedder) Model() string { return "openai/" + e.http.cfg.Model }

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error { return nil }
