// Package indexer turns documents into chunks, embeds them, and writes index bundles.
package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/medibot/internal/models"
)

// Chunker splits document text into overlapping character windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given window size and overlap, both in characters.
// It requires 0 <= overlap < size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidParameter, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrInvalidParameter, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window size in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits the document into chunks that cover its text in order, whitespace included.
// Output depends only on the text and the chunker's parameters; the last chunk may be shorter than size.
// Only empty text yields no chunks.
func (c *Chunker) Chunk(doc *models.Document) []*models.Chunk {
	if doc.Text == "" {
		return nil
	}
	runes := []rune(doc.Text)
	step := c.size - c.overlap
	chunks := make([]*models.Chunk, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		overlap := 0
		if start > 0 {
			overlap = c.overlap
		}
		ordinal := len(chunks)
		chunks = append(chunks, &models.Chunk{
			ID:         ChunkID(doc.ID, ordinal),
			DocumentID: doc.ID,
			Ordinal:    ordinal,
			Content:    string(runes[start:end]),
			Start:      start,
			End:        end,
			Overlap:    overlap,
			Page:       doc.PageAt(start),
			Source:     doc.Source,
		})
		if end >= len(runes) {
			break
		}
	}
	return chunks
}

// ChunkID returns the stable identifier of the chunk at ordinal within a document.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", docID, ordinal)
}

// Reassemble concatenates chunks, skipping each chunk's overlap, to recover the text they were cut from.
func Reassemble(chunks []*models.Chunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		content := ch.Content
		if ch.Overlap > 0 {
			skip := 0
			for i := 0; i < ch.Overlap && skip < len(content); i++ {
				_, w := utf8.DecodeRuneInString(content[skip:])
				skip += w
			}
			content = content[skip:]
		}
		b.WriteString(content)
	}
	return b.String()
}
