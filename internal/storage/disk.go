package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// File names inside an index location.
const (
	VectorFile = "vectors.db"
	CorpusFile = "corpus.db"
	KeywordDir = "keyword.bleve"
)

// Layout resolves the files of an index bundle rooted at one directory.
type Layout struct {
	Root string
}

// VectorPath is the bbolt vector file.
func (l Layout) VectorPath() string { return filepath.Join(l.Root, VectorFile) }

// CorpusPath is the SQLite corpus database.
func (l Layout) CorpusPath() string { return filepath.Join(l.Root, CorpusFile) }

// KeywordPath is the Bleve keyword index directory.
func (l Layout) KeywordPath() string { return filepath.Join(l.Root, KeywordDir) }

// Exists reports whether the bundle's vector file is present.
func (l Layout) Exists() bool {
	_, err := os.Stat(l.VectorPath())
	return err == nil
}

// DiskUsage returns the bytes used by the bundle's files.
func (l Layout) DiskUsage() (int64, error) {
	return DiskUsageBytes(l.VectorPath(), l.CorpusPath(), l.CorpusPath()+"-wal", l.KeywordPath())
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed). Missing paths contribute 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
	}
	return total, nil
}
