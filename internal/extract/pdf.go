package extract

import (
	"bytes"
	"fmt"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/ledongthuc/pdf"
)

// extractPDF returns the plain text of every non-null page, numbered from 1.
func extractPDF(content []byte) ([]models.PageText, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	n := r.NumPage()
	pages := make([]models.PageText, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, models.PageText{Number: i, Text: text})
	}
	return pages, nil
}
