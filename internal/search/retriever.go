// Package search retrieves the chunks most relevant to a question from the live index bundle.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperjump/medibot/internal/bundle"
	"github.com/hyperjump/medibot/internal/embedding"
	"github.com/hyperjump/medibot/internal/keyword"
	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/pkg/utils"
	"go.uber.org/zap"
)

// Mode selects how candidates are scored.
type Mode string

const (
	// ModeSemantic ranks by vector similarity only.
	ModeSemantic Mode = "semantic"
	// ModeHybrid fuses vector similarity with normalized keyword scores.
	ModeHybrid Mode = "hybrid"
)

// Options configures a Retriever.
type Options struct {
	Mode           Mode
	KeywordWeight  float64
	SemanticWeight float64
	// Candidates is how many hits each index contributes before fusion in hybrid mode.
	Candidates int
	Keyword    keyword.SearchOptions
}

// Retriever embeds questions and searches the bundle held by a handle.
type Retriever struct {
	embedder embedding.Embedder
	handle   *bundle.Handle
	opts     Options
	logger   *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets the retriever's logger.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever validates opts and returns a retriever over handle.
func NewRetriever(embedder embedding.Embedder, handle *bundle.Handle, opts Options, options ...RetrieverOption) (*Retriever, error) {
	switch opts.Mode {
	case ModeSemantic:
	case ModeHybrid:
		if opts.KeywordWeight < 0 || opts.SemanticWeight < 0 || opts.KeywordWeight+opts.SemanticWeight == 0 {
			return nil, fmt.Errorf("%w: hybrid weights must be non-negative and not both zero", models.ErrInvalidParameter)
		}
		if opts.Candidates <= 0 {
			return nil, fmt.Errorf("%w: candidates must be positive, got %d", models.ErrInvalidParameter, opts.Candidates)
		}
	default:
		return nil, fmt.Errorf("%w: unknown retrieval mode %q (supported: semantic, hybrid)", models.ErrInvalidParameter, opts.Mode)
	}
	r := &Retriever{embedder: embedder, handle: handle, opts: opts}
	for _, opt := range options {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r, nil
}

// Retrieve returns up to k chunks scoring at least minScore, by descending score.
// Nothing above the threshold is an empty context, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float64) (models.RetrievedContext, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidParameter, k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalidParameter)
	}
	// Embed before taking the index read lock so a slow provider never delays a swap.
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var out models.RetrievedContext
	err = r.handle.View(func(b *bundle.Bundle) error {
		var (
			hits []*FusedResult
			err  error
		)
		if r.opts.Mode == ModeHybrid && b.Keywords != nil {
			hits, err = r.hybrid(ctx, b, query, queryVec, k)
		} else {
			if r.opts.Mode == ModeHybrid {
				r.logger.Warn("retriever has no keyword index, using semantic scores", zap.String("location", b.Layout.Root))
			}
			hits, err = r.semantic(ctx, b, queryVec, k)
		}
		if err != nil {
			return err
		}
		out, err = r.resolve(ctx, b, hits, k, minScore)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("retrieved context", zap.Int("chunks", len(out)), zap.Int("k", k), zap.Float64("min_score", minScore))
	return out, nil
}

func (r *Retriever) semantic(ctx context.Context, b *bundle.Bundle, queryVec []float32, k int) ([]*FusedResult, error) {
	results, err := b.Vectors.Search(ctx, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	hits := make([]*FusedResult, len(results))
	for i, res := range results {
		hits[i] = &FusedResult{ChunkID: res.ChunkID, Score: res.Score, SemanticScore: res.Score}
	}
	return hits, nil
}

func (r *Retriever) hybrid(ctx context.Context, b *bundle.Bundle, query string, queryVec []float32, k int) ([]*FusedResult, error) {
	candidates := r.opts.Candidates
	if candidates < k {
		candidates = k
	}
	var (
		keywordScores  map[string]float64
		semanticScores map[string]float64
		errChan        = make(chan error, 2)
		wg             sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results, err := b.Keywords.Search(ctx, query, candidates, &r.opts.Keyword)
		if err != nil {
			errChan <- fmt.Errorf("keyword search: %w", err)
			return
		}
		keywordScores = NormalizeKeywordScores(results)
	}()
	go func() {
		defer wg.Done()
		results, err := b.Vectors.Search(ctx, queryVec, candidates)
		if err != nil {
			errChan <- fmt.Errorf("vector search: %w", err)
			return
		}
		semanticScores = SemanticScores(results)
	}()
	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		return nil, err
	}
	return Fuse(keywordScores, semanticScores, r.opts.KeywordWeight, r.opts.SemanticWeight), nil
}

// resolve drops hits below minScore, loads chunk text, and ranks the first k.
func (r *Retriever) resolve(ctx context.Context, b *bundle.Bundle, hits []*FusedResult, k int, minScore float64) (models.RetrievedContext, error) {
	kept := make([]*FusedResult, 0, k)
	ids := make([]string, 0, k)
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		kept = append(kept, h)
		ids = append(ids, h.ChunkID)
		if len(kept) == k {
			break
		}
	}
	if len(kept) == 0 {
		return models.RetrievedContext{}, nil
	}
	chunks, err := b.Corpus.GetChunks(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: load chunks: %v", models.ErrIncompatibleIndex, err)
	}
	out := make(models.RetrievedContext, 0, len(kept))
	for _, h := range kept {
		ch, ok := chunks[h.ChunkID]
		if !ok {
			r.logger.Warn("indexed chunk missing from corpus", zap.String("chunk_id", h.ChunkID))
			continue
		}
		out = append(out, models.RetrievedChunk{Chunk: ch, Score: h.Score, Rank: len(out) + 1})
	}
	return out, nil
}
