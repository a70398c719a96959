package extract

import (
	"fmt"
	"regexp"

	"github.com/hyperjump/medibot/internal/models"
)

const odfContentPath = "content.xml"

var (
	// odfText matches innermost text:p, text:span, and text:h elements in document order.
	odfText  = regexp.MustCompile(`<text:(?:p|span|h)\b[^>]*>([^<]*)</text:(?:p|span|h)>`)
	odfSlide = regexp.MustCompile(`(?s)<draw:page\b[^>]*>(.*?)</draw:page>`)
	odfTable = regexp.MustCompile(`(?s)<table:table\b[^>]*>(.*?)</table:table>`)
)

func odfContent(content []byte, format string) (string, error) {
	zr, err := openZip(content, format)
	if err != nil {
		return "", err
	}
	data, err := readZipFile(zr, odfContentPath)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", format, err)
	}
	if data == nil {
		return "", fmt.Errorf("extract %s: %s not found", format, odfContentPath)
	}
	return string(data), nil
}

// odfPages splits content.xml into one page per section matched by section, numbered from 1.
// Documents without any such section become a single page.
func odfPages(xml string, section *regexp.Regexp) []models.PageText {
	sections := section.FindAllStringSubmatch(xml, -1)
	if len(sections) == 0 {
		return []models.PageText{{Number: 1, Text: joinMatches(odfText.FindAllStringSubmatch(xml, -1))}}
	}
	pages := make([]models.PageText, len(sections))
	for i, s := range sections {
		pages[i] = models.PageText{Number: i + 1, Text: joinMatches(odfText.FindAllStringSubmatch(s[1], -1))}
	}
	return pages
}

// extractODT joins the text of an OpenDocument text file.
func extractODT(content []byte) (string, error) {
	xml, err := odfContent(content, "ODT")
	if err != nil {
		return "", err
	}
	return joinMatches(odfText.FindAllStringSubmatch(xml, -1)), nil
}

// extractODP returns one page per draw:page slide.
func extractODP(content []byte) ([]models.PageText, error) {
	xml, err := odfContent(content, "ODP")
	if err != nil {
		return nil, err
	}
	return odfPages(xml, odfSlide), nil
}

// extractODS returns one page per table:table sheet.
func extractODS(content []byte) ([]models.PageText, error) {
	xml, err := odfContent(content, "ODS")
	if err != nil {
		return nil, err
	}
	return odfPages(xml, odfTable), nil
}
