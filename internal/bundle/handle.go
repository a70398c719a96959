package bundle

import (
	"fmt"
	"sync"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/pkg/utils"
	"go.uber.org/zap"
)

// Handle holds the live bundle. Readers run inside View; Swap installs a fully built replacement,
// waiting for in-flight readers before closing the previous bundle.
type Handle struct {
	mu         sync.RWMutex
	current    *Bundle
	generation uint64
	logger     *zap.Logger
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithLogger sets the logger used for swap events.
func WithLogger(logger *zap.Logger) HandleOption {
	return func(h *Handle) {
		h.logger = logger
	}
}

// NewHandle returns a handle serving b. b may be nil until the first Swap.
func NewHandle(b *Bundle, opts ...HandleOption) *Handle {
	h := &Handle{current: b}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = utils.OrNop(h.logger)
	if b != nil {
		h.generation = 1
	}
	return h
}

// View calls fn with the live bundle under the read lock. fn must not retain the bundle.
func (h *Handle) View(fn func(b *Bundle) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return fmt.Errorf("%w: no index loaded", models.ErrIndexNotFound)
	}
	return fn(h.current)
}

// Swap installs next and closes the bundle it replaces.
func (h *Handle) Swap(next *Bundle) error {
	h.mu.Lock()
	prev := h.current
	h.current = next
	h.generation++
	gen := h.generation
	h.mu.Unlock()

	fields := []zap.Field{zap.Uint64("generation", gen)}
	if next != nil && next.Vectors != nil {
		fields = append(fields, zap.Int("vectors", next.Vectors.Size()), zap.String("location", next.Layout.Root))
	}
	h.logger.Info("index swapped", fields...)
	if prev != nil {
		return prev.Close()
	}
	return nil
}

// Generation counts installed bundles; it changes on every Swap.
func (h *Handle) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

// Loaded reports whether a bundle is installed.
func (h *Handle) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current != nil
}

// Close closes the live bundle and leaves the handle empty.
func (h *Handle) Close() error {
	h.mu.Lock()
	prev := h.current
	h.current = nil
	h.mu.Unlock()
	if prev != nil {
		return prev.Close()
	}
	return nil
}
