package indexer

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperjump/medibot/internal/models"
)

func mustChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap)
	if err != nil {
		t.Fatalf("NewChunker(%d, %d): %v", size, overlap, err)
	}
	return c
}

func TestNewChunker_InvalidParameters(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
		{"negative overlap", 10, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			if !errors.Is(err, models.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestChunker_Chunk(t *testing.T) {
	c := mustChunker(t, 10, 3)
	doc := &models.Document{ID: "doc1", Source: "a.pdf", Text: "Aspirin reduces fever and relieves mild pain."}
	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.DocumentID != "doc1" {
			t.Errorf("chunk %d DocumentID=%s", i, ch.DocumentID)
		}
		if ch.Ordinal != i {
			t.Errorf("chunk %d Ordinal=%d", i, ch.Ordinal)
		}
		if ch.ID != ChunkID("doc1", i) {
			t.Errorf("chunk %d ID=%s", i, ch.ID)
		}
		if ch.Source != "a.pdf" {
			t.Errorf("chunk %d Source=%s", i, ch.Source)
		}
		if n := utf8.RuneCountInString(ch.Content); n > 10 {
			t.Errorf("chunk %d has %d runes, exceeds size", i, n)
		}
	}
	last := chunks[len(chunks)-1]
	if last.End != utf8.RuneCountInString(doc.Text) {
		t.Errorf("last chunk ends at %d, want end of text", last.End)
	}
}

func TestChunker_Idempotent(t *testing.T) {
	c := mustChunker(t, 16, 4)
	doc := &models.Document{ID: "d", Text: strings.Repeat("ibuprofen is an NSAID. ", 20)}
	a := c.Chunk(doc)
	b := c.Chunk(doc)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if *a[i] != *b[i] {
			t.Errorf("chunk %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestChunker_Coverage(t *testing.T) {
	texts := []string{
		"short",
		"exactly ten",
		"   \n\t  ",
		strings.Repeat("Paracetamol overdose damages the liver. ", 13),
		"Dosierung für Kinder: ½ Tablette täglich — nicht überschreiten. 日本語のテキストも含む。",
	}
	params := [][2]int{{10, 0}, {10, 3}, {7, 6}, {64, 16}, {1, 0}}
	for _, text := range texts {
		for _, p := range params {
			c := mustChunker(t, p[0], p[1])
			chunks := c.Chunk(&models.Document{ID: "d", Text: text})
			if got := Reassemble(chunks); got != text {
				t.Errorf("size=%d overlap=%d: reassembled %q, want %q", p[0], p[1], got, text)
			}
			for i := 1; i < len(chunks); i++ {
				if chunks[i].Start != chunks[i-1].End-chunks[i].Overlap {
					t.Errorf("size=%d overlap=%d: gap between chunk %d and %d", p[0], p[1], i-1, i)
				}
			}
		}
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := mustChunker(t, 5, 1)
	if chunks := c.Chunk(&models.Document{ID: "d"}); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
	chunks := c.Chunk(&models.Document{ID: "d", Text: "   \n\t  "})
	if len(chunks) != 2 || Reassemble(chunks) != "   \n\t  " {
		t.Errorf("whitespace text chunked into %d chunks", len(chunks))
	}
}

func TestChunker_PageAttribution(t *testing.T) {
	text, spans := JoinPages([]models.PageText{
		{Number: 1, Text: "first page text"},
		{Number: 2, Text: "   "},
		{Number: 3, Text: "third page text"},
	})
	doc := &models.Document{ID: "d", Text: text, Pages: spans}
	chunks := mustChunker(t, 16, 0).Chunk(doc)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Page != 1 || chunks[1].Page != 3 {
		t.Errorf("pages = %d, %d; want 1, 3", chunks[0].Page, chunks[1].Page)
	}
}

func TestPreprocess(t *testing.T) {
	if Preprocess("  a  b  ") != "a b" {
		t.Error("expected trimmed and collapsed spaces")
	}
	if got := Preprocess("dose\x00 \x07mg"); got != "dose mg" {
		t.Errorf("Preprocess = %q, want control characters removed", got)
	}
}

func TestJoinPages(t *testing.T) {
	text, spans := JoinPages([]models.PageText{{Number: 1, Text: "ab\n"}, {Number: 2, Text: "  cd  ef"}})
	if text != "ab cd ef" {
		t.Errorf("text = %q", text)
	}
	if len(spans) != 2 || spans[0].Start != 0 || spans[1].Start != 3 {
		t.Errorf("spans = %+v", spans)
	}
}
