package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		SchemaVersion:  SchemaVersion,
		SourceRoot:     "/vault",
		DocumentCount:  3,
		ChunkCount:     9,
		BuiltAt:        time.Now().UTC().Truncate(time.Second),
		EmbeddingModel: "nomic-embed-text",
		Dimensions:     256,
	}
	require.NoError(t, WriteManifest(dir, m))

	got, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestManifestMissing(t *testing.T) {
	_, err := ReadManifest(t.TempDir())
	assert.True(t, errors.IsKind(err, errors.KindIndexCorrupt))
}

func TestManifestInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFile), []byte("{not json"), 0o644))

	_, err := ReadManifest(dir)
	assert.True(t, errors.IsKind(err, errors.KindIndexCorrupt))
}

func TestManifestBadFields(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{SchemaVersion: SchemaVersion, Dimensions: 0}
	require.NoError(t, WriteManifest(dir, m))

	_, err := ReadManifest(dir)
	assert.True(t, errors.IsKind(err, errors.KindIndexCorrupt))
}

func TestManifestCompatible(t *testing.T) {
	m := &Manifest{
		SchemaVersion:  SchemaVersion,
		SourceRoot:     "/vault",
		EmbeddingModel: "nomic-embed-text",
		Dimensions:     256,
	}

	assert.True(t, m.Compatible("/vault", "nomic-embed-text", 256))
	assert.False(t, m.Compatible("/other", "nomic-embed-text", 256))
	assert.False(t, m.Compatible("/vault", "mxbai-embed-large", 256))
	assert.False(t, m.Compatible("/vault", "nomic-embed-text", 768))
}
