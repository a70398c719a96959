// Package fileid derives stable document IDs from source file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const (
	prefix  = "doc-"
	hashLen = 16
)

// DocID returns the document ID of the file at path within the source directory root.
// The ID depends only on the slash-separated path relative to root, so it survives moving
// the whole source directory and rebuilding reproduces the same chunk IDs.
func DocID(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", path, err)
	}
	return PathID(filepath.ToSlash(rel)), nil
}

// PathID hashes a cleaned path into a short document ID. Same path always yields the same ID.
func PathID(path string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(hash[:])[:hashLen]
}
