// Package bundle opens, stages, and swaps the on-disk index bundle: vectors, corpus, and keyword index.
package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hyperjump/medibot/internal/keyword"
	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/storage"
	"github.com/hyperjump/medibot/internal/vector"
)

// Bundle is a loaded, read-only index: the vector index, the corpus it points into,
// and the optional keyword index.
type Bundle struct {
	Layout   storage.Layout
	Vectors  vector.Index
	Manifest *vector.Manifest
	Corpus   storage.Storage
	Keywords keyword.KeywordIndex
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

type openConfig struct {
	skipKeywords bool
}

// WithoutKeywords leaves the keyword index closed. Bleve holds an exclusive lock on its index
// while open, so a reader that only needs vectors and corpus must not take it from the live bundle.
func WithoutKeywords() OpenOption {
	return func(c *openConfig) { c.skipKeywords = true }
}

// Open loads the bundle at location. want is checked against the saved vector manifest.
// It fails with ErrIndexNotFound when nothing was built there and ErrIncompatibleIndex when
// the files do not belong together or do not match want.
func Open(location string, want vector.Expect, opts ...OpenOption) (*Bundle, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	layout := storage.Layout{Root: location}
	if _, err := os.Stat(location); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", models.ErrIndexNotFound, location)
	}
	vectors, manifest, err := vector.Load(layout.VectorPath(), want)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Layout: layout, Vectors: vectors, Manifest: manifest}

	if _, err := os.Stat(layout.CorpusPath()); err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: corpus database missing at %s", models.ErrIncompatibleIndex, layout.CorpusPath())
	}
	if b.Corpus, err = storage.NewSQLiteStorage(layout.CorpusPath()); err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrIncompatibleIndex, err)
	}
	if cfg.skipKeywords {
		return b, nil
	}
	if _, err := os.Stat(layout.KeywordPath()); err == nil {
		if b.Keywords, err = keyword.NewBleveIndex(layout.KeywordPath()); err != nil {
			b.Close()
			return nil, fmt.Errorf("%w: %v", models.ErrIncompatibleIndex, err)
		}
	}
	return b, nil
}

// Close releases every component of the bundle.
func (b *Bundle) Close() error {
	var errs []error
	if b.Vectors != nil {
		errs = append(errs, b.Vectors.Close())
	}
	if b.Corpus != nil {
		errs = append(errs, b.Corpus.Close())
	}
	if b.Keywords != nil {
		errs = append(errs, b.Keywords.Close())
	}
	return errors.Join(errs...)
}

// Stage creates an empty sibling directory of location to build a new bundle into.
func Stage(location string) (storage.Layout, error) {
	location = filepath.Clean(location)
	parent := filepath.Dir(location)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return storage.Layout{}, fmt.Errorf("create index parent dir: %w", err)
	}
	dir := filepath.Join(parent, fmt.Sprintf(".%s.staging-%s", filepath.Base(location), uuid.NewString()[:8]))
	if err := os.Mkdir(dir, 0755); err != nil {
		return storage.Layout{}, fmt.Errorf("create staging dir: %w", err)
	}
	return storage.Layout{Root: dir}, nil
}

// Commit replaces the bundle at location with the staged one by renaming directories.
// An existing non-empty directory that is not a bundle is never replaced.
func Commit(staged storage.Layout, location string) error {
	location = filepath.Clean(location)
	current := storage.Layout{Root: location}
	entries, err := os.ReadDir(location)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.Rename(staged.Root, location); err != nil {
			return fmt.Errorf("commit index: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read index location: %w", err)
	case len(entries) > 0 && !current.Exists():
		return fmt.Errorf("%w: %s exists and is not an index bundle", models.ErrInvalidParameter, location)
	}

	old := filepath.Join(filepath.Dir(location), fmt.Sprintf(".%s.old-%s", filepath.Base(location), uuid.NewString()[:8]))
	if err := os.Rename(location, old); err != nil {
		return fmt.Errorf("move previous index aside: %w", err)
	}
	if err := os.Rename(staged.Root, location); err != nil {
		_ = os.Rename(old, location)
		return fmt.Errorf("commit index: %w", err)
	}
	return os.RemoveAll(old)
}

// Discard removes a staged bundle that will not be committed.
func Discard(staged storage.Layout) error {
	return os.RemoveAll(staged.Root)
}
