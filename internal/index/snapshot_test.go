package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

func TestStoreLoadWithoutIndex(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Load()
	assert.True(t, errors.IsKind(err, errors.KindIndexNotFound))
}

func TestStoreInvalidPointer(t *testing.T) {
	root := t.TempDir()
	st, err := NewStore(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, currentFile), []byte("../escape\n"), 0o644))

	_, err = st.CurrentDir()
	assert.True(t, errors.IsKind(err, errors.KindIndexCorrupt))
}

func TestStorePointerToMissingSnapshot(t *testing.T) {
	root := t.TempDir()
	st, err := NewStore(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, currentFile), []byte("snap-42\n"), 0o644))

	_, err = st.Load()
	assert.True(t, errors.IsKind(err, errors.KindIndexCorrupt))
}

func TestStorePublishRejectsNonStaging(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Publish(filepath.Join(st.Root(), "snap-1"))
	assert.Error(t, err)
}

func TestStoreSweepStaging(t *testing.T) {
	root := t.TempDir()
	st, err := NewStore(root)
	require.NoError(t, err)

	stale := filepath.Join(root, "snap-1.building")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	keep := filepath.Join(root, "snap-2")
	require.NoError(t, os.MkdirAll(keep, 0o755))

	st.SweepStaging()

	assert.NoDirExists(t, stale)
	assert.DirExists(t, keep)
}

func TestSnapshotRetireWaitsForReaders(t *testing.T) {
	snap := buildTestSnapshot(t)

	snap.Acquire()
	snap.Retire()
	assert.DirExists(t, snap.Dir, "retire must not delete while a reader holds a reference")

	snap.Release()
	assert.NoDirExists(t, snap.Dir)
}

func TestSnapshotRetireWithoutReaders(t *testing.T) {
	snap := buildTestSnapshot(t)

	snap.Retire()
	assert.NoDirExists(t, snap.Dir)
}
