// Package index persists and loads immutable search snapshots.
//
// A snapshot is a directory holding four pieces: a bleve lexical index,
// an HNSW vector index, a sqlite chunk store, and a manifest. Snapshots
// are built in a staging directory and published with a rename, then
// pointed at by the CURRENT file. Nothing in a published snapshot is
// ever mutated.
package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// SchemaVersion changes whenever the on-disk layout does. A mismatch
// forces a full rebuild.
const SchemaVersion = 1

// Component file names inside a snapshot directory.
const (
	manifestFile = "manifest.json"
	lexicalDir   = "lexical.bleve"
	vectorFile   = "vectors.hnsw"
	chunksFile   = "chunks.db"

	// currentFile names the live snapshot directory, relative to the
	// index root.
	currentFile = "CURRENT"
)

// Manifest summarizes one snapshot.
type Manifest struct {
	SchemaVersion  int       `json:"schema_version"`
	SourceRoot     string    `json:"source_root"`
	DocumentCount  int       `json:"document_count"`
	ChunkCount     int       `json:"chunk_count"`
	BuiltAt        time.Time `json:"built_at"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimensions     int       `json:"dimensions"`
}

// WriteManifest persists the manifest as the last step of a build,
// via temp file plus rename.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(errors.KindInternal, "marshal manifest", err)
	}

	path := filepath.Join(dir, manifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.KindInternal, "write manifest", err).WithPath(tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.KindInternal, "publish manifest", err).WithPath(path)
	}
	return nil
}

// ReadManifest loads and structurally validates a snapshot manifest.
// Any defect reports KindIndexCorrupt; a missing file means the snapshot
// was never completed.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.KindIndexCorrupt, "snapshot has no manifest").WithPath(path)
		}
		return nil, errors.Wrap(errors.KindIndexCorrupt, "cannot read manifest", err).WithPath(path)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "manifest is not valid JSON", err).WithPath(path)
	}
	if m.SchemaVersion <= 0 || m.DocumentCount < 0 || m.ChunkCount < 0 || m.Dimensions <= 0 {
		return nil, errors.New(errors.KindIndexCorrupt, "manifest fails validation").WithPath(path)
	}
	return &m, nil
}

// Compatible reports whether a previous snapshot can seed an incremental
// build for the given source root, model, and dimensions.
func (m *Manifest) Compatible(sourceRoot, model string, dims int) bool {
	return m.SchemaVersion == SchemaVersion &&
		m.SourceRoot == sourceRoot &&
		m.EmbeddingModel == model &&
		m.Dimensions == dims
}
