package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hyperjump/medibot/internal/models"
	"github.com/xuri/excelize/v2"
)

// extractExcel returns one page per sheet: rows joined by newlines, cells by tabs.
func extractExcel(content []byte) ([]models.PageText, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]models.PageText, 0, len(sheets))
	for i, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var buf strings.Builder
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
		pages = append(pages, models.PageText{Number: i + 1, Text: strings.TrimSpace(buf.String())})
	}
	return pages, nil
}
