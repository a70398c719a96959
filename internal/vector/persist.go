package vector

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/medibot/internal/models"
	"go.etcd.io/bbolt"
)

// FormatVersion is the on-disk layout version written by Save.
const FormatVersion = 1

var (
	bucketManifest = []byte("manifest")
	bucketEntries  = []byte("entries")
	bucketVectors  = []byte("vectors")
	keyManifest    = []byte("manifest")
)

// Manifest describes a saved index. It is checked on load before any vector is read.
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	IndexType     string    `json:"index_type"`
	Dimensions    int       `json:"dimensions"`
	Metric        Metric    `json:"metric"`
	Model         string    `json:"model"`
	Count         int       `json:"count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Expect lists what a caller requires of a saved index. Zero fields are not checked.
// IndexType selects the implementation to restore into; empty means the saved type.
type Expect struct {
	Dimensions int
	Metric     Metric
	Model      string
	IndexType  string
}

type entryRecord struct {
	ChunkID  string        `json:"chunk_id"`
	Metadata EntryMetadata `json:"metadata"`
}

// Save writes idx and its metadata to a single bbolt file at path.
// The file is written next to path and renamed into place, so readers never see a partial index.
func Save(idx Index, path, model string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	db, err := bbolt.Open(tmp, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	entries := idx.Entries()
	manifest := Manifest{
		FormatVersion: FormatVersion,
		IndexType:     idx.Type(),
		Dimensions:    idx.Dimensions(),
		Metric:        idx.Metric(),
		Model:         model,
		Count:         len(entries),
		CreatedAt:     time.Now().UTC(),
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		mb, err := tx.CreateBucketIfNotExists(bucketManifest)
		if err != nil {
			return err
		}
		eb, err := tx.CreateBucketIfNotExists(bucketEntries)
		if err != nil {
			return err
		}
		vb, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return err
		}
		for i, e := range entries {
			key := ordinalKey(i)
			rec, err := json.Marshal(entryRecord{ChunkID: e.ChunkID, Metadata: e.Metadata})
			if err != nil {
				return err
			}
			if err := eb.Put(key, rec); err != nil {
				return err
			}
			if err := vb.Put(key, float32SliceToBytes(e.Vector)); err != nil {
				return err
			}
		}
		data, err := json.Marshal(manifest)
		if err != nil {
			return err
		}
		return mb.Put(keyManifest, data)
	})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write vector file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit vector file: %w", err)
	}
	return nil
}

// ReadManifest returns the manifest of a saved index without loading its vectors.
func ReadManifest(path string) (*Manifest, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var m *Manifest
	err = db.View(func(tx *bbolt.Tx) error {
		m, err = readManifest(tx)
		return err
	})
	return m, err
}

// Load restores an index saved by Save. A missing file is ErrIndexNotFound; an unreadable file,
// unknown format, or a manifest that does not match want is ErrIncompatibleIndex.
func Load(path string, want Expect) (Index, *Manifest, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	var (
		manifest *Manifest
		entries  []Entry
	)
	err = db.View(func(tx *bbolt.Tx) error {
		manifest, err = readManifest(tx)
		if err != nil {
			return err
		}
		if err := manifest.check(want); err != nil {
			return err
		}
		eb, vb := tx.Bucket(bucketEntries), tx.Bucket(bucketVectors)
		if eb == nil || vb == nil {
			return fmt.Errorf("%w: %s is missing entry buckets", models.ErrIncompatibleIndex, path)
		}
		entries = make([]Entry, 0, manifest.Count)
		return eb.ForEach(func(k, v []byte) error {
			var rec entryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: corrupt entry %x: %v", models.ErrIncompatibleIndex, k, err)
			}
			raw := vb.Get(k)
			if len(raw) != manifest.Dimensions*4 {
				return fmt.Errorf("%w: entry %s has %d vector bytes, expected %d",
					models.ErrIncompatibleIndex, rec.ChunkID, len(raw), manifest.Dimensions*4)
			}
			entries = append(entries, Entry{ChunkID: rec.ChunkID, Vector: bytesToFloat32Slice(raw), Metadata: rec.Metadata})
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	if len(entries) != manifest.Count {
		return nil, nil, fmt.Errorf("%w: manifest lists %d entries, file has %d", models.ErrIncompatibleIndex, manifest.Count, len(entries))
	}

	indexType := want.IndexType
	if indexType == "" {
		indexType = manifest.IndexType
	}
	idx, err := build(indexType, manifest.Dimensions, manifest.Metric, entries, false)
	if err != nil {
		return nil, nil, err
	}
	return idx, manifest, nil
}

func (m *Manifest) check(want Expect) error {
	if m.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: format version %d, expected %d", models.ErrIncompatibleIndex, m.FormatVersion, FormatVersion)
	}
	if want.Dimensions != 0 && m.Dimensions != want.Dimensions {
		return fmt.Errorf("%w: index has %d dimensions, embedder produces %d", models.ErrIncompatibleIndex, m.Dimensions, want.Dimensions)
	}
	if want.Metric != "" && m.Metric != want.Metric {
		return fmt.Errorf("%w: index metric is %s, expected %s", models.ErrIncompatibleIndex, m.Metric, want.Metric)
	}
	if want.Model != "" && m.Model != want.Model {
		return fmt.Errorf("%w: index was built with model %q, configured model is %q", models.ErrIncompatibleIndex, m.Model, want.Model)
	}
	return nil
}

func openReadOnly(path string) (*bbolt.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("stat vector file: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a vector file: %v", models.ErrIncompatibleIndex, path, err)
	}
	return db, nil
}

func readManifest(tx *bbolt.Tx) (*Manifest, error) {
	mb := tx.Bucket(bucketManifest)
	if mb == nil {
		return nil, fmt.Errorf("%w: manifest bucket missing", models.ErrIncompatibleIndex)
	}
	data := mb.Get(keyManifest)
	if data == nil {
		return nil, fmt.Errorf("%w: manifest missing", models.ErrIncompatibleIndex)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: corrupt manifest: %v", models.ErrIncompatibleIndex, err)
	}
	return &m, nil
}

func ordinalKey(i int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(i))
	return key
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
