package models

import (
	"context"
	"errors"
)

// Error taxonomy shared by all pipeline components. Wrap with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrGenerationTimeout     = errors.New("generation timed out")
	ErrDimensionMismatch     = errors.New("dimension mismatch")
	ErrIncompatibleIndex     = errors.New("incompatible index")
	ErrIndexNotFound         = errors.New("index not found")
)

// FailureReason is the machine-readable kind of a failed answer.
type FailureReason string

const (
	ReasonEmbeddingUnavailable  FailureReason = "embedding_unavailable"
	ReasonGenerationTimeout     FailureReason = "generation_timeout"
	ReasonGenerationUnavailable FailureReason = "generation_unavailable"
	ReasonIndexUnavailable      FailureReason = "index_unavailable"
	ReasonInvalidRequest        FailureReason = "invalid_request"
	ReasonCancelled             FailureReason = "cancelled"
	ReasonInternal              FailureReason = "internal"
)

// ReasonFor maps an error to its failure reason.
func ReasonFor(err error) FailureReason {
	switch {
	case errors.Is(err, ErrGenerationTimeout):
		return ReasonGenerationTimeout
	case errors.Is(err, ErrGenerationUnavailable):
		return ReasonGenerationUnavailable
	case errors.Is(err, ErrEmbeddingUnavailable):
		return ReasonEmbeddingUnavailable
	case errors.Is(err, ErrIndexNotFound), errors.Is(err, ErrIncompatibleIndex), errors.Is(err, ErrDimensionMismatch):
		return ReasonIndexUnavailable
	case errors.Is(err, ErrInvalidParameter):
		return ReasonInvalidRequest
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	default:
		return ReasonInternal
	}
}
