package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/pkg/utils"
	"go.uber.org/zap"
)

// HTTPConfig configures a remote embedding provider.
type HTTPConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Dimensions   int
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
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: %s dimensions must be positive", models.ErrInvalidParameter, provider)
	}
	return nil
}

type httpClient struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

func newHTTPClient(cfg HTTPConfig) *httpClient {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: utils.OrNop(cfg.Logger),
	}
}

// postJSON posts body to path with bounded retries and decodes the response into out.
// Any failure is reported as ErrEmbeddingUnavailable.
func (c *httpClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	attempt := 0
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
			c.logger.Debug("embedding request failed", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			c.logger.Debug("embedding provider error", zap.String("url", url), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
			return &utils.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s after %d attempt(s): %v", models.ErrEmbeddingUnavailable, url, attempt, err)
	}
	return nil
}
