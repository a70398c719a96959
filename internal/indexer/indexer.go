package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/medibot/internal/bundle"
	"github.com/hyperjump/medibot/internal/embedding"
	"github.com/hyperjump/medibot/internal/keyword"
	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/storage"
	"github.com/hyperjump/medibot/internal/vector"
	"github.com/hyperjump/medibot/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures index builds. Every field is required; defaults live in the config package.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	IndexType    string
	Metric       vector.Metric
	// BatchSize is the number of chunks per embedding request.
	BatchSize int
	// Workers bounds the embedding requests in flight.
	Workers int
	// Keyword also builds the Bleve keyword index used by hybrid retrieval.
	Keyword bool
	// Reuse takes vectors for unchanged chunk text from the bundle being replaced.
	Reuse bool
}

// Stats summarizes a completed build.
type Stats struct {
	Location   string        `json:"location"`
	Documents  int           `json:"documents"`
	Chunks     int           `json:"chunks"`
	Embedded   int           `json:"embedded"`
	Reused     int           `json:"reused"`
	Dimensions int           `json:"dimensions"`
	Model      string        `json:"model"`
	Duration   time.Duration `json:"duration"`
}

// Indexer builds index bundles: normalize, chunk, embed, and write vectors, corpus, and keyword index.
type Indexer struct {
	embedder embedding.Embedder
	chunker  *Chunker
	opts     Options
	logger   *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for build progress.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer validates opts and returns an indexer embedding with embedder.
func NewIndexer(embedder embedding.Embedder, opts Options, options ...IndexerOption) (*Indexer, error) {
	chunker, err := NewChunker(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 || opts.Workers <= 0 {
		return nil, fmt.Errorf("%w: batch size and workers must be positive, got %d and %d",
			models.ErrInvalidParameter, opts.BatchSize, opts.Workers)
	}
	if _, err := vector.ParseMetric(string(opts.Metric)); err != nil {
		return nil, err
	}
	idx := &Indexer{embedder: embedder, chunker: chunker, opts: opts}
	for _, opt := range options {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx, nil
}

// Chunker returns the chunker used for builds.
func (idx *Indexer) Chunker() *Chunker { return idx.chunker }

// Build indexes inputs into a new bundle and atomically replaces the bundle at location with it.
// The previous bundle stays intact on any failure. An empty input list yields an empty, valid bundle.
func (idx *Indexer) Build(ctx context.Context, inputs []*models.DocumentInput, location string) (*Stats, error) {
	start := time.Now()
	docs, err := normalize(inputs)
	if err != nil {
		return nil, err
	}

	var chunks []*models.Chunk
	for _, doc := range docs {
		chunks = append(chunks, idx.chunker.Chunk(doc)...)
	}
	idx.logger.Info("indexer chunked corpus",
		zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", idx.chunker.Size()), zap.Int("chunk_overlap", idx.chunker.Overlap()))

	var previous map[string][]float32
	if idx.opts.Reuse {
		previous = idx.previousVectors(ctx, location)
	}
	vectors, reused, err := idx.embedChunks(ctx, chunks, previous)
	if err != nil {
		return nil, err
	}

	entries := make([]vector.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = vector.Entry{
			ChunkID: ch.ID,
			Vector:  vectors[i],
			Metadata: vector.EntryMetadata{
				DocumentID: ch.DocumentID,
				Source:     ch.Source,
				Page:       ch.Page,
				Ordinal:    ch.Ordinal,
			},
		}
	}
	vecIndex, err := vector.Build(idx.opts.IndexType, idx.embedder.Dimensions(), idx.opts.Metric, entries)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	defer vecIndex.Close()

	staged, err := bundle.Stage(location)
	if err != nil {
		return nil, err
	}
	if err := idx.write(ctx, staged, docs, chunks, vecIndex); err != nil {
		_ = bundle.Discard(staged)
		return nil, err
	}
	if err := bundle.Commit(staged, location); err != nil {
		_ = bundle.Discard(staged)
		return nil, err
	}

	stats := &Stats{
		Location:   location,
		Documents:  len(docs),
		Chunks:     len(chunks),
		Embedded:   len(chunks) - reused,
		Reused:     reused,
		Dimensions: idx.embedder.Dimensions(),
		Model:      idx.embedder.Model(),
		Duration:   time.Since(start),
	}
	idx.logger.Info("indexer build committed",
		zap.String("location", location), zap.Int("chunks", stats.Chunks),
		zap.Int("reused", reused), zap.Duration("duration", stats.Duration))
	return stats, nil
}

// write fills a staged bundle directory. Every store is closed before returning.
func (idx *Indexer) write(ctx context.Context, layout storage.Layout, docs []*models.Document, chunks []*models.Chunk, vecIndex vector.Index) (err error) {
	corpus, err := storage.NewSQLiteStorage(layout.CorpusPath())
	if err != nil {
		return fmt.Errorf("create corpus store: %w", err)
	}
	defer func() { err = errors.Join(err, corpus.Close()) }()

	byDoc := make(map[string][]*models.Chunk, len(docs))
	for _, ch := range chunks {
		byDoc[ch.DocumentID] = append(byDoc[ch.DocumentID], ch)
	}
	for _, doc := range docs {
		if err := corpus.PutDocument(ctx, doc, byDoc[doc.ID]); err != nil {
			return fmt.Errorf("store document %s: %w", doc.ID, err)
		}
	}

	if idx.opts.Keyword {
		kw, err := keyword.NewBleveIndex(layout.KeywordPath())
		if err != nil {
			return err
		}
		err = kw.IndexChunks(ctx, chunks)
		if closeErr := kw.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("build keyword index: %w", err)
		}
	}

	if err := vector.Save(vecIndex, layout.VectorPath(), idx.embedder.Model()); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	return nil
}

// embedChunks returns one vector per chunk. Chunk text found in previous is not sent to the embedder;
// the rest is embedded in parallel batches, each filling only its own slots.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*models.Chunk, previous map[string][]float32) ([][]float32, int, error) {
	vectors := make([][]float32, len(chunks))
	var pending []int
	for i, ch := range chunks {
		if v, ok := previous[ch.Content]; ok {
			vectors[i] = v
			continue
		}
		pending = append(pending, i)
	}
	reused := len(chunks) - len(pending)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.opts.Workers)
	for lo := 0; lo < len(pending); lo += idx.opts.BatchSize {
		hi := lo + idx.opts.BatchSize
		if hi > len(pending) {
			hi = len(pending)
		}
		batch := pending[lo:hi]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, i := range batch {
				texts[j] = chunks[i].Content
			}
			out, err := idx.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			for j, i := range batch {
				vectors[i] = out[j]
			}
			idx.logger.Debug("indexer embedded batch", zap.Int("from", lo), zap.Int("size", len(batch)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("embed chunks: %w", err)
	}
	return vectors, reused, nil
}

// previousVectors maps chunk text to its stored vector in the bundle at location, when that bundle
// was built with the same model, dimension and metric. Any problem just disables reuse.
// The keyword index is left alone since a live bundle may hold it open.
func (idx *Indexer) previousVectors(ctx context.Context, location string) map[string][]float32 {
	b, err := bundle.Open(location, vector.Expect{
		Dimensions: idx.embedder.Dimensions(),
		Metric:     idx.opts.Metric,
		Model:      idx.embedder.Model(),
	}, bundle.WithoutKeywords())
	if err != nil {
		if !errors.Is(err, models.ErrIndexNotFound) {
			idx.logger.Info("indexer not reusing previous vectors", zap.Error(err))
		}
		return nil
	}
	defer b.Close()

	entries := b.Vectors.Entries()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ChunkID
	}
	stored, err := b.Corpus.GetChunks(ctx, ids)
	if err != nil {
		idx.logger.Info("indexer not reusing previous vectors", zap.Error(err))
		return nil
	}
	out := make(map[string][]float32, len(entries))
	for _, e := range entries {
		if ch, ok := stored[e.ChunkID]; ok {
			out[ch.Content] = e.Vector
		}
	}
	return out
}

// normalize turns inputs into documents with normalized text and page spans.
func normalize(inputs []*models.DocumentInput) ([]*models.Document, error) {
	now := time.Now().UTC()
	seen := make(map[string]bool, len(inputs))
	docs := make([]*models.Document, 0, len(inputs))
	for _, in := range inputs {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate document id %q", models.ErrInvalidParameter, id)
		}
		seen[id] = true

		doc := &models.Document{
			ID:         id,
			Source:     in.Source,
			Title:      in.Title,
			Metadata:   in.Metadata,
			IngestedAt: now,
		}
		if doc.Title == "" && in.Source != "" {
			doc.Title = filepath.Base(in.Source)
		}
		if len(in.Pages) > 0 {
			doc.Text, doc.Pages = JoinPages(in.Pages)
		} else {
			doc.Text = Preprocess(in.Content)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
