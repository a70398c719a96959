package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	vectors := filepath.Join(dir, "vectors.db")
	keywords := filepath.Join(dir, "keyword.bleve")
	writeFile(t, vectors, 5)
	writeFile(t, filepath.Join(keywords, "store", "root.bolt"), 2)
	writeFile(t, filepath.Join(keywords, "index_meta.json"), 1)

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{vectors}, 5},
		{"directory is summed recursively", []string{keywords}, 3},
		{"file and directory", []string{vectors, keywords}, 8},
		{"missing path counts zero", []string{vectors, filepath.Join(dir, "corpus.db-wal"), keywords}, 8},
		{"empty path skipped", []string{"", vectors}, 5},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DiskUsageBytes = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	if l.Exists() {
		t.Error("empty dir should not contain a bundle")
	}
	writeFile(t, l.VectorPath(), 4)
	writeFile(t, l.CorpusPath(), 2)
	writeFile(t, l.CorpusPath()+"-wal", 1)
	writeFile(t, filepath.Join(l.KeywordPath(), "index_meta.json"), 3)
	if !l.Exists() {
		t.Error("expected bundle to exist")
	}
	got, err := l.DiskUsage()
	if err != nil {
		t.Fatal(err)
	}
	if got != 10 {
		t.Errorf("DiskUsage = %d, want 10", got)
	}
	if filepath.Base(l.KeywordPath()) != KeywordDir || filepath.Base(l.VectorPath()) != VectorFile {
		t.Errorf("unexpected layout paths: %s, %s", l.KeywordPath(), l.VectorPath())
	}
}
