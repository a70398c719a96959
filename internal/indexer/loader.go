package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/medibot/internal/extract"
	"github.com/hyperjump/medibot/internal/fileid"
	"github.com/hyperjump/medibot/internal/models"
)

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// LoadDirectory extracts every regular file under source whose extension is in allowedExts
// (all extract.Extensions when empty) into document inputs, in path order. source may also be a
// single file. Document IDs derive from paths relative to source, so rebuilding the same tree
// reproduces the same chunk IDs. Any unreadable file fails the whole load.
func LoadDirectory(ctx context.Context, source string, allowedExts []string, extractor *extract.Extractor) ([]*models.DocumentInput, error) {
	if len(allowedExts) == 0 {
		allowedExts = extract.Extensions
	}
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	root, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: document source: %v", models.ErrInvalidParameter, err)
	}

	var paths []string
	if info.Mode().IsRegular() {
		paths = []string{root}
		root = filepath.Dir(root)
	} else {
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !ExtensionAllowed(filepath.Ext(path), allowedExts) {
				return nil
			}
			// Resolve symlinks so only regular files are read.
			if finfo, statErr := os.Stat(path); statErr == nil && finfo.Mode().IsRegular() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	sort.Strings(paths)

	inputs := make([]*models.DocumentInput, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := loadFile(root, path, extractor)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func loadFile(root, path string, extractor *extract.Extractor) (*models.DocumentInput, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	pages, err := extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	id, err := fileid.DocID(root, path)
	if err != nil {
		return nil, err
	}
	rel, _ := filepath.Rel(root, path)
	return &models.DocumentInput{
		ID:     id,
		Source: filepath.ToSlash(rel),
		Title:  filepath.Base(path),
		Pages:  pages,
		// Stored as strings since UnixNano exceeds float64 precision once round-tripped through JSON.
		Metadata: map[string]interface{}{
			metaKeySourcePath:  path,
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	}, nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and leading dots.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
