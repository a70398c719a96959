package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/pkg/utils"
	"go.uber.org/zap"
)

// HTTPConfig configures a remote generation provider.
type HTTPConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	// Timeout bounds one whole generation, including a streamed response.
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *zap.Logger
}

func (c HTTPConfig) validate(provider string) error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: %s base URL is required", models.ErrInvalidParameter, provider)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: %s model is required", models.ErrInvalidParameter, provider)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %s timeout must be positive", models.ErrInvalidParameter, provider)
	}
	return nil
}

type httpClient struct {
	provider string
	cfg      HTTPConfig
	client   *http.Client
	logger   *zap.Logger
}

func newHTTPClient(provider string, cfg HTTPConfig) *httpClient {
	return &httpClient{
		provider: provider,
		cfg:      cfg,
		client:   &http.Client{},
		logger:   utils.OrNop(cfg.Logger),
	}
}

// open posts body to path, retrying transient failures, and returns the response of the first
// successful attempt with the context bounding the generation. The caller must close the body and call cancel.
func (c *httpClient) open(ctx context.Context, path string, body interface{}) (io.ReadCloser, context.Context, context.CancelFunc, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling request: %w", err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)

	var (
		respBody io.ReadCloser
		attempt  int
	)
	err = utils.Retry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.Debug("generation request failed", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			c.logger.Debug("generation provider error", zap.String("url", url), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
			return &utils.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		respBody = resp.Body
		return nil
	})
	if err != nil {
		cancel()
		return nil, nil, nil, classify(ctx, c.provider, fmt.Errorf("%s after %d attempt(s): %w", url, attempt, err))
	}
	return respBody, ctx, cancel, nil
}

// postJSON posts body and decodes a single JSON response into out.
func (c *httpClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	rc, ctx, cancel, err := c.open(ctx, path, body)
	if err != nil {
		return err
	}
	defer cancel()
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(out); err != nil {
		if ctx.Err() != nil || utils.IsTimeout(err) {
			return classify(ctx, c.provider, err)
		}
		return fmt.Errorf("%w: %s: decoding response: %v", models.ErrGenerationUnavailable, c.provider, err)
	}
	return nil
}

// stream posts body and feeds each non-empty response line to parse, which returns the fragment
// to emit and whether the stream is complete. The channel closes early once ctx ends.
func (c *httpClient) stream(ctx context.Context, path string, body interface{}, parse func(line string) (string, bool, error)) (<-chan Token, error) {
	rc, reqCtx, cancel, err := c.open(ctx, path, body)
	if err != nil {
		return nil, err
	}
	// Sends watch the caller's context only, so a timeout error still reaches the consumer.
	out := make(chan Token)
	go func() {
		defer close(out)
		defer cancel()
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			text, done, err := parse(line)
			if err != nil {
				send(ctx, out, Token{Err: fmt.Errorf("%w: %s: %v", models.ErrGenerationUnavailable, c.provider, err)})
				return
			}
			if text != "" && !send(ctx, out, Token{Text: text}) {
				return
			}
			if done {
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = fmt.Errorf("%w: %s: stream ended before completion", models.ErrGenerationUnavailable, c.provider)
		}
		send(ctx, out, Token{Err: classify(reqCtx, c.provider, err)})
	}()
	return out, nil
}
