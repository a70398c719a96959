package bundle

import (
	"context"
	"time"
)

// Status describes a loaded bundle for the status command and endpoint.
type Status struct {
	Location       string    `json:"location"`
	Documents      int64     `json:"documents"`
	Chunks         int64     `json:"chunks"`
	Vectors        int       `json:"vectors"`
	Dimensions     int       `json:"dimensions"`
	Metric         string    `json:"metric"`
	IndexType      string    `json:"index_type"`
	Model          string    `json:"model"`
	Keyword        bool      `json:"keyword_index"`
	CreatedAt      time.Time `json:"created_at"`
	DiskUsageBytes int64     `json:"disk_usage_bytes"`
}

// Status counts the bundle's contents and its size on disk.
func (b *Bundle) Status(ctx context.Context) (*Status, error) {
	docs, err := b.Corpus.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := b.Corpus.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := b.Layout.DiskUsage()
	if err != nil {
		return nil, err
	}
	return &Status{
		Location:       b.Layout.Root,
		Documents:      docs,
		Chunks:         chunks,
		Vectors:        b.Vectors.Size(),
		Dimensions:     b.Vectors.Dimensions(),
		Metric:         string(b.Vectors.Metric()),
		IndexType:      b.Vectors.Type(),
		Model:          b.Manifest.Model,
		Keyword:        b.Keywords != nil,
		CreatedAt:      b.Manifest.CreatedAt,
		DiskUsageBytes: usage,
	}, nil
}
