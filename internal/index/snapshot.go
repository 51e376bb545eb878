package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// Snapshot is one loaded, immutable index version. It is reference
// counted: every in-flight search holds a reference, and a retired
// snapshot closes and deletes itself when the last reference drops.
type Snapshot struct {
	Dir      string
	Manifest *Manifest
	Lexical  *LexicalIndex
	Vector   *VectorIndex
	Chunks   *ChunkStore

	mu      sync.Mutex
	refs    int
	retired bool
}

// Acquire takes a reference for the duration of one operation.
func (s *Snapshot) Acquire() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

// Release drops a reference. The final release of a retired snapshot
// closes its stores and removes its directory.
func (s *Snapshot) Release() {
	s.mu.Lock()
	s.refs--
	dispose := s.retired && s.refs <= 0
	s.mu.Unlock()
	if dispose {
		s.dispose()
	}
}

// Retire marks the snapshot as superseded. Disposal happens when the
// last reference is released.
func (s *Snapshot) Retire() {
	s.mu.Lock()
	s.retired = true
	dispose := s.refs <= 0
	s.mu.Unlock()
	if dispose {
		s.dispose()
	}
}

// Close disposes immediately. Only for snapshots with no outstanding
// references, such as the one-shot query path.
func (s *Snapshot) Close() {
	s.dispose()
}

func (s *Snapshot) dispose() {
	_ = s.Lexical.Close()
	_ = s.Vector.Close()
	_ = s.Chunks.Close()
	s.mu.Lock()
	retired := s.retired
	s.mu.Unlock()
	if retired {
		_ = os.RemoveAll(s.Dir)
	}
}

// Store manages snapshot directories under an index root and the
// CURRENT pointer naming the live one.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "create index directory", err).WithPath(root)
	}
	return &Store{root: root}, nil
}

// Root returns the index root directory.
func (st *Store) Root() string { return st.root }

// CurrentDir resolves the CURRENT pointer to a snapshot directory.
// Reports KindIndexNotFound when no snapshot has ever been published.
func (st *Store) CurrentDir() (string, error) {
	data, err := os.ReadFile(filepath.Join(st.root, currentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New(errors.KindIndexNotFound, "no search index exists").
				WithPath(st.root).
				WithSuggestion("run 'vaultsearch index' to build one")
		}
		return "", errors.Wrap(errors.KindIndexCorrupt, "cannot read index pointer", err).WithPath(st.root)
	}

	name := strings.TrimSpace(string(data))
	if name == "" || strings.Contains(name, string(filepath.Separator)) {
		return "", errors.New(errors.KindIndexCorrupt, "index pointer is invalid").WithPath(st.root)
	}
	return filepath.Join(st.root, name), nil
}

// Load opens the current snapshot. A resolvable pointer with unloadable
// contents is corruption, never an empty index.
func (st *Store) Load() (*Snapshot, error) {
	dir, err := st.CurrentDir()
	if err != nil {
		return nil, err
	}
	return OpenSnapshot(dir)
}

// OpenSnapshot opens the snapshot stored in dir, validating every piece.
func OpenSnapshot(dir string) (*Snapshot, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	lexical, err := OpenLexicalIndex(filepath.Join(dir, lexicalDir))
	if err != nil {
		return nil, err
	}
	vector, err := OpenVectorIndex(filepath.Join(dir, vectorFile))
	if err != nil {
		_ = lexical.Close()
		return nil, err
	}
	chunks, err := OpenChunkStore(filepath.Join(dir, chunksFile))
	if err != nil {
		_ = lexical.Close()
		_ = vector.Close()
		return nil, err
	}

	if vector.dims != manifest.Dimensions {
		_ = lexical.Close()
		_ = vector.Close()
		_ = chunks.Close()
		return nil, errors.Newf(errors.KindIndexCorrupt,
			"vector index has %d dimensions, manifest says %d", vector.dims, manifest.Dimensions).WithPath(dir)
	}

	return &Snapshot{
		Dir:      dir,
		Manifest: manifest,
		Lexical:  lexical,
		Vector:   vector,
		Chunks:   chunks,
	}, nil
}

// previous is the read-only slice of the published snapshot an
// incremental build reads from: the manifest and the chunk store. The
// bleve and hnsw pieces stay untouched, so a daemon holding the full
// snapshot open cannot block the build on their file locks.
type previous struct {
	Dir      string
	Manifest *Manifest
	Chunks   *ChunkStore
}

func (p *previous) Close() {
	_ = p.Chunks.Close()
}

// openPrevious opens the current snapshot's manifest and chunk store
// without touching its lexical or vector files.
func (st *Store) openPrevious() (*previous, error) {
	dir, err := st.CurrentDir()
	if err != nil {
		return nil, err
	}
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	chunks, err := OpenChunkStore(filepath.Join(dir, chunksFile))
	if err != nil {
		return nil, err
	}
	return &previous{Dir: dir, Manifest: manifest, Chunks: chunks}, nil
}

// StagingDir returns a fresh private build directory under the root.
func (st *Store) StagingDir() string {
	name := fmt.Sprintf("snap-%d.building", time.Now().UnixNano())
	return filepath.Join(st.root, name)
}

// Publish renames a completed staging directory into place and swaps the
// CURRENT pointer to it. The pointer write is temp file plus rename, so
// readers only ever see the old snapshot or the new one.
func (st *Store) Publish(stagingDir string) (string, error) {
	finalDir := strings.TrimSuffix(stagingDir, ".building")
	if finalDir == stagingDir {
		return "", errors.New(errors.KindInternal, "publish requires a staging directory").WithPath(stagingDir)
	}
	if err := os.Rename(stagingDir, finalDir); err != nil {
		return "", errors.Wrap(errors.KindInternal, "finalize snapshot directory", err).WithPath(stagingDir)
	}

	pointer := filepath.Join(st.root, currentFile)
	tmp := pointer + ".tmp"
	if err := os.WriteFile(tmp, []byte(filepath.Base(finalDir)+"\n"), 0o644); err != nil {
		return "", errors.Wrap(errors.KindInternal, "write index pointer", err).WithPath(tmp)
	}
	if err := os.Rename(tmp, pointer); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Wrap(errors.KindInternal, "swap index pointer", err).WithPath(pointer)
	}
	return finalDir, nil
}

// SweepStaging removes leftover .building directories from interrupted
// builds.
func (st *Store) SweepStaging() {
	entries, err := os.ReadDir(st.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".building") {
			_ = os.RemoveAll(filepath.Join(st.root, e.Name()))
		}
	}
}

// SweepOld removes published snapshot directories other than the current
// one. Callers must be sure no reader still holds the old snapshots; the
// daemon relies on reference counting instead.
func (st *Store) SweepOld() {
	current, err := st.CurrentDir()
	if err != nil {
		return
	}
	entries, err := os.ReadDir(st.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, "snap-") || strings.HasSuffix(name, ".building") {
			continue
		}
		dir := filepath.Join(st.root, name)
		if dir != current {
			_ = os.RemoveAll(dir)
		}
	}
}
