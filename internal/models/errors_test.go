package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want FailureReason
	}{
		{fmt.Errorf("%w: slow", ErrGenerationTimeout), ReasonGenerationTimeout},
		{fmt.Errorf("%w: 503", ErrGenerationUnavailable), ReasonGenerationUnavailable},
		{fmt.Errorf("embed query: %w", ErrEmbeddingUnavailable), ReasonEmbeddingUnavailable},
		{ErrIndexNotFound, ReasonIndexUnavailable},
		{fmt.Errorf("load: %w", ErrIncompatibleIndex), ReasonIndexUnavailable},
		{ErrDimensionMismatch, ReasonIndexUnavailable},
		{fmt.Errorf("%w: k must be positive", ErrInvalidParameter), ReasonInvalidRequest},
		{fmt.Errorf("retrieve: %w", context.Canceled), ReasonCancelled},
		{errors.New("boom"), ReasonInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if got := ReasonFor(tt.err); got != tt.want {
				t.Errorf("ReasonFor(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
