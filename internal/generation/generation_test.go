package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/prompt"
	"go.uber.org/zap"
)

func testPrompt() *prompt.Prompt {
	return &prompt.Prompt{Text: "Context: Aspirin reduces fever.\nQuestion: What reduces fever?", Question: "What reduces fever?"}
}

func testConfig(url string) HTTPConfig {
	return HTTPConfig{
		BaseURL:      url,
		APIKey:       "test-key",
		Model:        "test-model",
		Timeout:      2 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		Logger:       zap.NewNop(),
	}
}

func ollamaServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model != "test-model" || req.Prompt == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if !req.Stream {
			_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "Aspirin reduces fever.", Done: true})
			return
		}
		enc := json.NewEncoder(w)
		for _, part := range []string{"Aspirin ", "reduces ", "fever."} {
			_ = enc.Encode(ollamaResponse{Response: part})
			w.(http.Flusher).Flush()
		}
		_ = enc.Encode(ollamaResponse{Done: true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllama_GenerateAndStreamAgree(t *testing.T) {
	var calls int32
	srv := ollamaServer(t, &calls)
	g, err := NewOllamaGenerator(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	text, err := g.Generate(ctx, testPrompt())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stream, err := g.Stream(ctx, testPrompt())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	streamed, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Aspirin reduces fever." || streamed != text {
		t.Errorf("Generate %q, Stream %q", text, streamed)
	}
	if g.Model() != "ollama/test-model" {
		t.Errorf("Model() = %q", g.Model())
	}
}

func openAIServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if !req.Stream {
			fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Aspirin reduces fever."},"finish_reason":"stop"}]}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		for _, part := range []string{"Aspirin", " reduces", " fever."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
			w.(http.Flusher).Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_GenerateAndStreamAgree(t *testing.T) {
	g, err := NewOpenAIGenerator(testConfig(openAIServer(t).URL))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	text, err := g.Generate(ctx, testPrompt())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stream, err := g.Stream(ctx, testPrompt())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	streamed, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Aspirin reduces fever." || streamed != text {
		t.Errorf("Generate %q, Stream %q", text, streamed)
	}
}

func TestOpenAI_requiresAPIKey(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.APIKey = ""
	if _, err := NewOpenAIGenerator(cfg); !errors.Is(err, models.ErrGenerationUnavailable) {
		t.Errorf("expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestHTTP_retriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "ok", Done: true})
	}))
	defer srv.Close()

	g, _ := NewOllamaGenerator(testConfig(srv.URL))
	text, err := g.Generate(context.Background(), testPrompt())
	if err != nil || text != "ok" {
		t.Fatalf("Generate = %q, %v", text, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestHTTP_failures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		want      error
		wantCalls int32
	}{
		{
			name:      "server error exhausts retries",
			handler:   func(w http.ResponseWriter, r *http.Request) { http.Error(w, "boom", http.StatusInternalServerError) },
			want:      models.ErrGenerationUnavailable,
			wantCalls: 3,
		},
		{
			name:      "client error is not retried",
			handler:   func(w http.ResponseWriter, r *http.Request) { http.Error(w, "no such model", http.StatusNotFound) },
			want:      models.ErrGenerationUnavailable,
			wantCalls: 1,
		},
		{
			name:      "malformed response",
			handler:   func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "{not json") },
			want:      models.ErrGenerationUnavailable,
			wantCalls: 1,
		},
		{
			name: "slow server times out without retry",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			want:      models.ErrGenerationTimeout,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer srv.Close()
			cfg := testConfig(srv.URL)
			cfg.Timeout = 100 * time.Millisecond
			g, _ := NewOllamaGenerator(cfg)
			_, err := g.Generate(context.Background(), testPrompt())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestHTTP_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	cfg := testConfig(url)
	cfg.MaxRetries = 1
	g, _ := NewOllamaGenerator(cfg)
	if _, err := g.Generate(context.Background(), testPrompt()); !errors.Is(err, models.ErrGenerationUnavailable) {
		t.Errorf("expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestHTTP_cancelled(t *testing.T) {
	var calls int32
	g, _ := NewOllamaGenerator(testConfig(ollamaServer(t, &calls).URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Generate(ctx, testPrompt()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStream_timeoutMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "Aspirin "})
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()
	cfg := testConfig(srv.URL)
	cfg.Timeout = 100 * time.Millisecond
	g, _ := NewOllamaGenerator(cfg)
	stream, err := g.Stream(context.Background(), testPrompt())
	if err != nil {
		t.Fatal(err)
	}
	text, err := Collect(stream)
	if !errors.Is(err, models.ErrGenerationTimeout) {
		t.Errorf("expected ErrGenerationTimeout, got %v", err)
	}
	if text != "Aspirin " {
		t.Errorf("partial text = %q", text)
	}
}

func TestStream_truncatedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "Aspirin "})
	}))
	defer srv.Close()
	g, _ := NewOllamaGenerator(testConfig(srv.URL))
	stream, err := g.Stream(context.Background(), testPrompt())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Collect(stream); !errors.Is(err, models.ErrGenerationUnavailable) {
		t.Errorf("expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestExtractive(t *testing.T) {
	g := NewExtractiveGenerator()
	ctx := context.Background()
	grounded := &prompt.Prompt{
		Question: "What reduces fever?",
		Context: models.RetrievedContext{
			{Chunk: &models.Chunk{Content: "Ibuprofen treats headaches. Water is essential."}},
			{Chunk: &models.Chunk{Content: "Take with food. Aspirin reduces fever"}},
		},
	}
	tests := []struct {
		name string
		p    *prompt.Prompt
		want string
	}{
		{"matching sentence", grounded, "Aspirin reduces fever. [2]"},
		{"no context", &prompt.Prompt{Question: "What reduces fever?"}, DontKnow},
		{"only short terms", &prompt.Prompt{Question: "Why is it?", Context: grounded.Context}, DontKnow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := g.Generate(ctx, tt.p)
			if err != nil {
				t.Fatal(err)
			}
			if text != tt.want {
				t.Errorf("Generate = %q, want %q", text, tt.want)
			}
			stream, err := g.Stream(ctx, tt.p)
			if err != nil {
				t.Fatal(err)
			}
			if streamed, _ := Collect(stream); streamed != text {
				t.Errorf("Stream = %q, Generate = %q", streamed, text)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, provider := range []string{ProviderOllama, ProviderOpenAI, ProviderExtractive} {
		g, err := New(Config{Provider: provider, Model: "m", BaseURL: "http://localhost:1", APIKey: "k", Timeout: time.Second}, nil)
		if err != nil || g == nil {
			t.Errorf("%s: %v", provider, err)
		}
	}
	if _, err := New(Config{Provider: "palm"}, nil); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
	if _, err := New(Config{Provider: ProviderOllama, Model: "m", BaseURL: "http://x"}, nil); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("missing timeout: expected ErrInvalidParameter, got %v", err)
	}
	if !strings.HasPrefix(NewExtractiveGenerator().Model(), "extractive") {
		t.Error("unexpected extractive model name")
	}
}
