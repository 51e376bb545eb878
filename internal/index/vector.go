package index

import (
	"bufio"
	"encoding/gob"
	"math"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// VectorIndex wraps a coder/hnsw graph keyed by chunk ID. Vectors are
// normalized on insert so cosine distance is meaningful; scores map
// distance [0,2] onto similarity [1,0].
type VectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// vectorMetadata is the gob sidecar persisted next to the graph export.
type vectorMetadata struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
}

// VectorHit is one scored chunk from vector search.
type VectorHit struct {
	ChunkID string
	Score   float64
}

// NewVectorIndex creates an empty index for vectors of the given width.
func NewVectorIndex(dims int) (*VectorIndex, error) {
	if dims <= 0 {
		return nil, errors.Newf(errors.KindInternal, "invalid vector dimensions %d", dims)
	}
	return &VectorIndex{
		graph:  newGraph(),
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return g
}

// Add inserts chunk vectors. IDs are unique within a snapshot so
// duplicates indicate a builder bug.
func (v *VectorIndex) Add(chunkIDs []string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return errors.Newf(errors.KindInternal, "ids and vectors length mismatch: %d vs %d", len(chunkIDs), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errors.New(errors.KindInternal, "vector index is closed")
	}

	for i, id := range chunkIDs {
		vec := vectors[i]
		if len(vec) != v.dims {
			return errors.Newf(errors.KindInternal, "vector for %s has %d dimensions, want %d", id, len(vec), v.dims)
		}
		if _, exists := v.idMap[id]; exists {
			return errors.Newf(errors.KindInternal, "duplicate chunk id %s", id)
		}

		normalized := make([]float32, len(vec))
		copy(normalized, vec)
		normalizeInPlace(normalized)

		key := v.nextKey
		v.nextKey++
		v.graph.Add(hnsw.MakeNode(key, normalized))
		v.idMap[id] = key
		v.keyMap[key] = id
	}
	return nil
}

// Search returns the k nearest chunks by cosine similarity.
func (v *VectorIndex) Search(query []float32, k int) ([]VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, errors.New(errors.KindInternal, "vector index is closed")
	}
	if len(query) != v.dims {
		return nil, errors.Newf(errors.KindInternal, "query has %d dimensions, want %d", len(query), v.dims)
	}
	if v.graph.Len() == 0 || k <= 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k)
	hits := make([]VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, ok := v.keyMap[node.Key]
		if !ok {
			continue
		}
		distance := v.graph.Distance(normalized, node.Value)
		hits = append(hits, VectorHit{
			ChunkID: id,
			Score:   float64(1.0 - distance/2.0),
		})
	}
	return hits, nil
}

// Count returns the number of stored vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// Save exports the graph and its ID sidecar, each via temp file plus
// rename.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return errors.New(errors.KindInternal, "vector index is closed")
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "create vector file", err).WithPath(tmp)
	}
	if err := v.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return errors.Wrap(errors.KindInternal, "export vector graph", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.KindInternal, "close vector file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.KindInternal, "publish vector file", err).WithPath(path)
	}

	return v.saveMetadata(path + ".meta")
}

func (v *VectorIndex) saveMetadata(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "create vector metadata", err).WithPath(tmp)
	}
	meta := vectorMetadata{IDMap: v.idMap, NextKey: v.nextKey, Dimensions: v.dims}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return errors.Wrap(errors.KindInternal, "encode vector metadata", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.KindInternal, "close vector metadata", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.KindInternal, "publish vector metadata", err).WithPath(path)
	}
	return nil
}

// OpenVectorIndex loads a saved graph plus sidecar. Defects report
// KindIndexCorrupt.
func OpenVectorIndex(path string) (*VectorIndex, error) {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "vector metadata missing", err).WithPath(path + ".meta")
	}
	defer func() { _ = metaFile.Close() }()

	var meta vectorMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "vector metadata unreadable", err).WithPath(path + ".meta")
	}
	if meta.Dimensions <= 0 {
		return nil, errors.New(errors.KindIndexCorrupt, "vector metadata has invalid dimensions").WithPath(path + ".meta")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "vector file missing", err).WithPath(path)
	}
	defer func() { _ = file.Close() }()

	graph := newGraph()
	// Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "vector graph unreadable", err).WithPath(path)
	}

	v := &VectorIndex{
		graph:   graph,
		dims:    meta.Dimensions,
		idMap:   meta.IDMap,
		keyMap:  make(map[uint64]string, len(meta.IDMap)),
		nextKey: meta.NextKey,
	}
	for id, key := range meta.IDMap {
		v.keyMap[key] = id
	}
	return v, nil
}

func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	v.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
