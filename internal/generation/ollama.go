package generation

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hyperjump/medibot/internal/prompt"
)

// OllamaGenerator generates through a local Ollama server's /api/generate endpoint.
type OllamaGenerator struct {
	http *httpClient
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewOllamaGenerator returns a generator for cfg.Model served at cfg.BaseURL.
func NewOllamaGenerator(cfg HTTPConfig) (*OllamaGenerator, error) {
	if err := cfg.validate("ollama"); err != nil {
		return nil, err
	}
	return &OllamaGenerator{http: newHTTPClient("ollama", cfg)}, nil
}

func (g *OllamaGenerator) request(p *prompt.Prompt, stream bool) ollamaRequest {
	return ollamaRequest{
		Model:  g.http.cfg.Model,
		Prompt: p.Text,
		Stream: stream,
		Options: ollamaOptions{
			Temperature: g.http.cfg.Temperature,
			NumPredict:  g.http.cfg.MaxTokens,
		},
	}
}

// Generate returns the full completion of p.
func (g *OllamaGenerator) Generate(ctx context.Context, p *prompt.Prompt) (string, error) {
	var resp ollamaResponse
	if err := g.http.postJSON(ctx, "/api/generate", g.request(p, false), &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", classify(ctx, "ollama", errors.New(resp.Error))
	}
	return resp.Response, nil
}

// Stream returns the completion of p as NDJSON fragments arrive.
func (g *OllamaGenerator) Stream(ctx context.Context, p *prompt.Prompt) (<-chan Token, error) {
	return g.http.stream(ctx, "/api/generate", g.request(p, true), func(line string) (string, bool, error) {
		var chunk ollamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", false, err
		}
		if chunk.Error != "" {
			return "", false, errors.New(chunk.Error)
		}
		return chunk.Response, chunk.Done, nil
	})
}

// Model returns the provider-qualified model name.
func (g *OllamaGenerator) Model() string {
	return "ollama/" + g.http.cfg.Model
}

var _ Generator = (*OllamaGenerator)(nil)
