package watcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/medibot/internal/bundle"
	"github.com/hyperjump/medibot/internal/extract"
	"github.com/hyperjump/medibot/internal/indexer"
	"github.com/hyperjump/medibot/internal/vector"
	"github.com/hyperjump/medibot/pkg/utils"
	"go.uber.org/zap"
)

// RefresherConfig names what a Refresher builds from and where.
type RefresherConfig struct {
	// Source is the document directory (or single file) indexed by Rebuild.
	Source string
	// Location is the index bundle directory.
	Location   string
	Extensions []string
	Expect     vector.Expect
}

// Refresher rebuilds the index bundle from its document source and installs bundles into the live handle.
// Builds run one at a time; queries keep using the previous bundle until the swap.
type Refresher struct {
	indexer   *indexer.Indexer
	extractor *extract.Extractor
	handle    *bundle.Handle
	cfg       RefresherConfig
	mu        sync.Mutex
	lastBuild atomic.Pointer[indexer.Stats]
	logger    *zap.Logger
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefresherLogger sets the refresher's logger.
func WithRefresherLogger(l *zap.Logger) RefresherOption {
	return func(r *Refresher) { r.logger = l }
}

// NewRefresher returns a refresher that builds with idx and swaps into handle.
func NewRefresher(idx *indexer.Indexer, handle *bundle.Handle, cfg RefresherConfig, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		indexer:   idx,
		extractor: extract.NewExtractor(),
		handle:    handle,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r
}

// Reload opens the bundle currently on disk and swaps it in. On failure the live bundle stays.
func (r *Refresher) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := bundle.Open(r.cfg.Location, r.cfg.Expect)
	if err != nil {
		r.logger.Warn("index reload failed", zap.String("location", r.cfg.Location), zap.Error(err))
		return err
	}
	return r.handle.Swap(b)
}

// Rebuild indexes the document source into a new bundle, commits it, and swaps it in.
func (r *Refresher) Rebuild(ctx context.Context) (*indexer.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	inputs, err := indexer.LoadDirectory(ctx, r.cfg.Source, r.cfg.Extensions, r.extractor)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	stats, err := r.indexer.Build(ctx, inputs, r.cfg.Location)
	if err != nil {
		r.logger.Error("index rebuild failed", zap.String("source", r.cfg.Source), zap.Error(err))
		return nil, err
	}
	if err := r.Reload(ctx); err != nil {
		return nil, fmt.Errorf("install rebuilt index: %w", err)
	}
	r.lastBuild.Store(stats)
	r.logger.Info("index rebuilt",
		zap.String("source", r.cfg.Source),
		zap.Int("documents", stats.Documents),
		zap.Int("chunks", stats.Chunks),
		zap.Int("embedded", stats.Embedded),
		zap.Int("reused", stats.Reused),
		zap.Duration("duration", time.Since(start)),
	)
	return stats, nil
}

// OnChange adapts Rebuild to a Watcher callback. ctx bounds every rebuild it starts.
func (r *Refresher) OnChange(ctx context.Context) func(changed []string) {
	return func(changed []string) {
		if _, err := r.Rebuild(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("rebuild after change failed, keeping current index", zap.Int("changed", len(changed)), zap.Error(err))
		}
	}
}

// LastBuild returns the stats of the most recent successful Rebuild, or nil.
func (r *Refresher) LastBuild() *indexer.Stats {
	return r.lastBuild.Load()
}
