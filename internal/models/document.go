// Package models defines core data structures for documents, chunks, queries, and answers.
package models

import "time"

// Document represents an ingested document. Text is the normalized full text the chunks are cut from.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	Source     string                 `json:"source" db:"source"`
	Title      string                 `json:"title" db:"title"`
	Text       string                 `json:"text" db:"text"`
	Pages      []PageSpan             `json:"pages,omitempty" db:"-"`
	Metadata   map[string]interface{} `json:"metadata" db:"metadata"`
	IngestedAt time.Time              `json:"ingested_at" db:"ingested_at"`
}

// PageSpan marks where a page begins in Document.Text, as a rune offset.
type PageSpan struct {
	Number int `json:"number"`
	Start  int `json:"start"`
}

// PageAt returns the page number containing the rune at offset, or 0 when the document has no pages.
func (d *Document) PageAt(offset int) int {
	page := 0
	for _, p := range d.Pages {
		if p.Start > offset {
			break
		}
		page = p.Number
	}
	return page
}

// Chunk is a contiguous span of a document's text.
// Start and End are rune offsets; Overlap is the number of leading runes shared with the previous chunk.
type Chunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Ordinal    int       `json:"ordinal" db:"ordinal"`
	Content    string    `json:"content" db:"content"`
	Start      int       `json:"start" db:"start_offset"`
	End        int       `json:"end" db:"end_offset"`
	Overlap    int       `json:"overlap" db:"overlap"`
	Page       int       `json:"page,omitempty" db:"page"`
	Source     string    `json:"source" db:"source"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PageText is the extracted text of one page, slide, or sheet.
type PageText struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// DocumentInput is the input for ingesting a document. Pages takes precedence over Content when set.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Source   string                 `json:"source,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content,omitempty"`
	Pages    []PageText             `json:"pages,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
