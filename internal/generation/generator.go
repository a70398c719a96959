// Package generation produces answers from composed prompts through local or remote language models.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/prompt"
	"github.com/hyperjump/medibot/pkg/utils"
)

// Token is one streamed fragment. A Token with Err set is the last one sent.
type Token struct {
	Text string
	Err  error
}

// Generator produces text for a prompt. Generate and a collected Stream yield the same text for the same prompt.
// Failures are ErrGenerationTimeout or ErrGenerationUnavailable; a cancelled context is returned as is.
// A stream closes early when ctx ends, so stream consumers check ctx.Err() after draining it.
type Generator interface {
	Generate(ctx context.Context, p *prompt.Prompt) (string, error)
	Stream(ctx context.Context, p *prompt.Prompt) (<-chan Token, error)
	Model() string
}

// Collect drains a stream and joins its fragments.
func Collect(stream <-chan Token) (string, error) {
	var b strings.Builder
	for tok := range stream {
		if tok.Err != nil {
			return b.String(), tok.Err
		}
		b.WriteString(tok.Text)
	}
	return b.String(), nil
}

// classify maps a provider failure onto the generation error taxonomy.
func classify(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, models.ErrGenerationTimeout) || errors.Is(err, models.ErrGenerationUnavailable) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || utils.IsTimeout(err) {
		return fmt.Errorf("%w: %s: %v", models.ErrGenerationTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrGenerationUnavailable, provider, err)
}

// send delivers tok unless ctx is done first.
func send(ctx context.Context, out chan<- Token, tok Token) bool {
	select {
	case out <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}
