package indexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/medibot/internal/models"
)

// Preprocess normalizes text for indexing (trim, collapse whitespace, drop control characters).
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r), r == utf8.RuneError:
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// JoinPages preprocesses each page and joins the non-empty ones with a single space,
// recording where each page starts in the joined text.
func JoinPages(pages []models.PageText) (string, []models.PageSpan) {
	var b strings.Builder
	spans := make([]models.PageSpan, 0, len(pages))
	offset := 0
	for _, p := range pages {
		text := Preprocess(p.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
			offset++
		}
		spans = append(spans, models.PageSpan{Number: p.Number, Start: offset})
		b.WriteString(text)
		offset += utf8.RuneCountInString(text)
	}
	return b.String(), spans
}
