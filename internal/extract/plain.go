package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as string, replacing invalid UTF-8 sequences with U+FFFD.
func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\uFFFD"), nil
	}
	return string(content), nil
}

var (
	// rtfGroup matches destination groups such as font and color tables, one nesting level deep.
	rtfGroup   = regexp.MustCompile(`\{\\\*?\\(?:fonttbl|colortbl|stylesheet|info|pict)[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
	rtfControl = regexp.MustCompile(`\\([a-zA-Z]+)-?\d* ?`)
	rtfHex     = regexp.MustCompile(`\\'[0-9a-fA-F]{2}`)

	rtfProtect = strings.NewReplacer(`\\`, "\uE000", `\{`, "\uE001", `\}`, "\uE002")
	rtfRestore = strings.NewReplacer("\uE000", `\`, "\uE001", "{", "\uE002", "}", "{", "", "}", "")
)

// extractRTF strips control words and destination groups, keeping the visible text.
func extractRTF(content []byte) (string, error) {
	s, _ := extractPlain(content)
	s = rtfProtect.Replace(s)
	s = rtfGroup.ReplaceAllString(s, "")
	s = rtfHex.ReplaceAllString(s, "")
	s = rtfControl.ReplaceAllStringFunc(s, func(m string) string {
		switch rtfControl.FindStringSubmatch(m)[1] {
		case "par", "line":
			return "\n"
		case "tab":
			return "\t"
		default:
			return ""
		}
	})
	return strings.TrimSpace(rtfRestore.Replace(s)), nil
}
