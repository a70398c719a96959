// Package cli formats command output for medibot.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/medibot/internal/bundle"
	"github.com/hyperjump/medibot/internal/indexer"
	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const excerptLength = 160

// ParseFormat returns the output format named by s.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q; use text or json", models.ErrInvalidParameter, s)
	}
}

// ExitCode is 0 for answers that completed, including insufficient context, and 1 for failures.
func ExitCode(a *models.Answer) int {
	if a != nil && a.Succeeded() {
		return 0
	}
	return 1
}

// WriteAnswer writes an answer to w. In text mode sources are listed after the answer when showSources is set.
func WriteAnswer(w io.Writer, a *models.Answer, format OutputFormat, showSources bool) error {
	if format == OutputJSON {
		return writeJSON(w, a)
	}
	fmt.Fprintf(w, "%s\n", strings.TrimSpace(a.Text))
	if a.Status == models.StatusFailed {
		fmt.Fprintf(w, "\n(failed: %s)\n", a.Reason)
		return nil
	}
	if a.Truncated {
		fmt.Fprintln(w, "\n(context was truncated to fit the prompt)")
	}
	if showSources {
		WriteSources(w, a.Context)
	}
	return nil
}

// WriteSources lists retrieved passages with their location and score. Nothing is written for empty context.
func WriteSources(w io.Writer, c models.RetrievedContext) {
	if c.Empty() {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, rc := range c {
		writeSource(w, rc)
	}
}

func writeSource(w io.Writer, rc models.RetrievedChunk) {
	if rc.Chunk == nil {
		return
	}
	location := rc.Chunk.Source
	if location == "" {
		location = rc.Chunk.DocumentID
	}
	if rc.Chunk.Page > 0 {
		location = fmt.Sprintf("%s, page %d", location, rc.Chunk.Page)
	}
	excerpt := strings.Join(strings.Fields(rc.Chunk.Content), " ")
	fmt.Fprintf(w, "  [%d] %s (score %.3f)\n      %s\n", rc.Rank, location, rc.Score, utils.Truncate(excerpt, excerptLength))
}

// WriteStatus writes a bundle status to w.
func WriteStatus(w io.Writer, s *bundle.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "location:           %s\n", s.Location)
	fmt.Fprintf(w, "documents:          %d   # count of indexed documents\n", s.Documents)
	fmt.Fprintf(w, "chunks:             %d   # count of text chunks\n", s.Chunks)
	fmt.Fprintf(w, "vectors:            %d   # count of vectors in the index\n", s.Vectors)
	fmt.Fprintf(w, "disk_usage_bytes:   %d   # bundle size on disk\n", s.DiskUsageBytes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# index")
	fmt.Fprintf(w, "model:              %s\n", s.Model)
	fmt.Fprintf(w, "dimensions:         %d\n", s.Dimensions)
	fmt.Fprintf(w, "metric:             %s\n", s.Metric)
	fmt.Fprintf(w, "index_type:         %s\n", s.IndexType)
	fmt.Fprintf(w, "keyword_index:      %t\n", s.Keyword)
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(w, "created_at:         %s\n", s.CreatedAt.UTC().Format("2006-01-02 15:04:05Z"))
	}
	return nil
}

// WriteBuildStats writes the summary of an index build to w.
func WriteBuildStats(w io.Writer, s *indexer.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Indexed %d document(s) into %d chunk(s) at %s\n", s.Documents, s.Chunks, s.Location)
	fmt.Fprintf(w, "Embedded %d chunk(s), reused %d, with %s (%d dimensions) in %s\n",
		s.Embedded, s.Reused, s.Model, s.Dimensions, s.Duration.Round(time.Millisecond))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
