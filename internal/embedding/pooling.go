package embedding

import (
	"fmt"

	"github.com/hyperjump/medibot/internal/models"
)

// Pooling names accepted by the ONNX embedder.
const (
	// PoolingMean averages the token states under the attention mask, as sentence-transformers does.
	PoolingMean = "mean"
	// PoolingNone takes a model output that is already one sentence vector.
	PoolingNone = "none"
)

func validPooling(name string) error {
	switch name {
	case PoolingMean, PoolingNone:
		return nil
	default:
		return fmt.Errorf("%w: unknown pooling %q", models.ErrInvalidParameter, name)
	}
}

// meanPool averages the rows of hidden (tokens x dims, row-major) whose mask is set.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var n float32
	for tok, m := range mask {
		if m == 0 || (tok+1)*dims > len(hidden) {
			continue
		}
		row := hidden[tok*dims : (tok+1)*dims]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= n
		}
	}
	return out
}
