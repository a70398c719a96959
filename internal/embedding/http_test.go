package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/medibot/internal/models"
)

func testHTTPConfig(url string, dims int) HTTPConfig {
	return HTTPConfig{
		BaseURL:      url,
		APIKey:       "test-key",
		Model:        "test-model",
		Dimensions:   dims,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %s", req.Model)
		}
		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1, 0})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(testHTTPConfig(srv.URL, 3))
	if err != nil {
		t.Fatal(err)
	}
	vs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 3 || vs[2][0] != 2 {
		t.Errorf("unexpected vectors %v", vs)
	}
	v, err := e.Embed(context.Background(), "single")
	if err != nil || len(v) != 3 {
		t.Errorf("Embed = %v, %v", v, err)
	}
}

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(testHTTPConfig(srv.URL, 2))
	if err != nil {
		t.Fatal(err)
	}
	vs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if vs[0][0] != 1 || vs[1][1] != 1 {
		t.Errorf("vectors not in input order: %v", vs)
	}
}

func TestOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	cfg := testHTTPConfig("http://localhost:1", 2)
	cfg.APIKey = ""
	if _, err := NewOpenAIEmbedder(cfg); !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestHTTPEmbedder_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,2]]}`))
	}))
	defer srv.Close()

	e, _ := NewOllamaEmbedder(testHTTPConfig(srv.URL, 2))
	if _, err := e.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestHTTPEmbedder_UnavailableAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e, _ := NewOllamaEmbedder(testHTTPConfig(srv.URL, 2))
	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestHTTPEmbedder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, _ := NewOllamaEmbedder(testHTTPConfig(url, 2))
	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestHTTPEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,2,3]]}`))
	}))
	defer srv.Close()

	e, _ := NewOllamaEmbedder(testHTTPConfig(srv.URL, 2))
	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestHTTPConfig_Validate(t *testing.T) {
	cfg := testHTTPConfig("", 2)
	if _, err := NewOllamaEmbedder(cfg); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for missing URL, got %v", err)
	}
}
