package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/prompt"
)

// OpenAIGenerator generates through an OpenAI-compatible /chat/completions endpoint, such as Groq.
type OpenAIGenerator struct {
	http *httpClient
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		Delta        chatMessage `json:"delta"`
		FinishReason *string     `json:"finish_reason"`
	} `json:"choices"`
}

var errNoChoices = errors.New("response has no choices")

// NewOpenAIGenerator returns a generator for cfg.Model. An API key is required.
func NewOpenAIGenerator(cfg HTTPConfig) (*OpenAIGenerator, error) {
	if err := cfg.validate("openai"); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai: API key is not set", models.ErrGenerationUnavailable)
	}
	return &OpenAIGenerator{http: newHTTPClient("openai", cfg)}, nil
}

func (g *OpenAIGenerator) request(p *prompt.Prompt, stream bool) chatRequest {
	return chatRequest{
		Model:       g.http.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: p.Text}},
		Temperature: g.http.cfg.Temperature,
		MaxTokens:   g.http.cfg.MaxTokens,
		Stream:      stream,
	}
}

// Generate returns the full completion of p.
func (g *OpenAIGenerator) Generate(ctx context.Context, p *prompt.Prompt) (string, error) {
	var resp chatResponse
	if err := g.http.postJSON(ctx, "/chat/completions", g.request(p, false), &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", classify(ctx, "openai", errNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream returns the completion of p from server-sent events.
func (g *OpenAIGenerator) Stream(ctx context.Context, p *prompt.Prompt) (<-chan Token, error) {
	return g.http.stream(ctx, "/chat/completions", g.request(p, true), func(line string) (string, bool, error) {
		if !strings.HasPrefix(line, "data:") {
			// Comments and event names carry no content.
			return "", false, nil
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return "", true, nil
		}
		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", false, err
		}
		if len(chunk.Choices) == 0 {
			return "", false, nil
		}
		return chunk.Choices[0].Delta.Content, false, nil
	})
}

// Model returns the provider-qualified model name.
func (g *OpenAIGenerator) Model() string {
	return "openai/" + g.http.cfg.Model
}

var _ Generator = (*OpenAIGenerator)(nil)
