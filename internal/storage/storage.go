// Package storage persists the ingested corpus: documents and the chunks cut from them.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/medibot/internal/models"
)

// ErrNotFound is returned when a document or chunk does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document and chunk persistence operations.
type Storage interface {
	// PutDocument stores doc and its chunks, replacing any previous version of the document and all of its chunks.
	PutDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	// GetChunks returns the chunks that exist among ids, keyed by id.
	GetChunks(ctx context.Context, ids []string) (map[string]*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
