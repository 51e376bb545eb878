package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sync"

	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// ChunkStore is the sqlite side of a snapshot: document signatures plus
// chunk text and embeddings. Embeddings are stored so incremental builds
// can carry unchanged documents forward without re-embedding them.
type ChunkStore struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// DocumentMeta is one document's row.
type DocumentMeta struct {
	Path       string
	Title      string
	ModTime    int64 // unix nanoseconds
	Size       int64
	ChunkCount int
}

// StoredChunk is one chunk row with its embedding.
type StoredChunk struct {
	ID        string
	Path      string
	Seq       int
	Text      string
	Heading   string
	Embedding []float32
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS documents (
	path        TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	mtime       INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id        TEXT PRIMARY KEY,
	path      TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	text      TEXT NOT NULL,
	heading   TEXT NOT NULL DEFAULT '',
	embedding BLOB NOT NULL,
	FOREIGN KEY (path) REFERENCES documents(path)
);

CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path, seq);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// NewChunkStore creates or opens the store at path. An empty path opens
// an in-memory database for tests.
func NewChunkStore(path string) (*ChunkStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "open chunk store", err).WithPath(path)
	}
	// Single connection: the store is written by one builder and read by
	// one engine, and modernc pragmas are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(errors.KindInternal, "set pragma", err)
		}
	}

	if _, err := db.Exec(chunkSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.KindInternal, "initialize chunk schema", err)
	}
	return &ChunkStore{db: db}, nil
}

// OpenChunkStore opens an existing store read-only, validating its
// schema. Defects report KindIndexCorrupt.
func OpenChunkStore(path string) (*ChunkStore, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "cannot open chunk store", err).WithPath(path)
	}
	db.SetMaxOpenConns(1)

	var version int
	if err := db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.KindIndexCorrupt, "chunk store fails validation", err).WithPath(path)
	}
	return &ChunkStore{db: db}, nil
}

// PutDocument writes a document and its chunks in one transaction,
// replacing any earlier version of the same path.
func (s *ChunkStore) PutDocument(ctx context.Context, doc *DocumentMeta, chunks []*StoredChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(errors.KindInternal, "chunk store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, doc.Path); err != nil {
		return errors.Wrap(errors.KindInternal, "clear stale chunks", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (path, title, mtime, size, chunk_count) VALUES (?, ?, ?, ?, ?)`,
		doc.Path, doc.Title, doc.ModTime, doc.Size, doc.ChunkCount,
	); err != nil {
		return errors.Wrap(errors.KindInternal, "insert document", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, path, seq, text, heading, embedding) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "prepare chunk insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.Path, ch.Seq, ch.Text, ch.Heading, encodeEmbedding(ch.Embedding)); err != nil {
			return errors.Wrap(errors.KindInternal, "insert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.KindInternal, "commit document", err)
	}
	return nil
}

// Documents returns every document keyed by path.
func (s *ChunkStore) Documents(ctx context.Context) (map[string]*DocumentMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, title, mtime, size, chunk_count FROM documents`)
	if err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "read documents", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make(map[string]*DocumentMeta)
	for rows.Next() {
		var d DocumentMeta
		if err := rows.Scan(&d.Path, &d.Title, &d.ModTime, &d.Size, &d.ChunkCount); err != nil {
			return nil, errors.Wrap(errors.KindIndexCorrupt, "scan document row", err)
		}
		docs[d.Path] = &d
	}
	return docs, rows.Err()
}

// Document returns one document, or nil when absent.
func (s *ChunkStore) Document(ctx context.Context, path string) (*DocumentMeta, error) {
	var d DocumentMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT path, title, mtime, size, chunk_count FROM documents WHERE path = ?`, path).
		Scan(&d.Path, &d.Title, &d.ModTime, &d.Size, &d.ChunkCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "read document", err)
	}
	return &d, nil
}

// ChunksForPath returns a document's chunks in sequence order.
func (s *ChunkStore) ChunksForPath(ctx context.Context, path string) ([]*StoredChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, seq, text, heading, embedding FROM chunks WHERE path = ? ORDER BY seq`, path)
	if err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "read chunks", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChunks(rows)
}

// Chunk returns one chunk by ID, or nil when absent.
func (s *ChunkStore) Chunk(ctx context.Context, id string) (*StoredChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, seq, text, heading, embedding FROM chunks WHERE id = ?`, id)
	if err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "read chunk", err)
	}
	defer func() { _ = rows.Close() }()

	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// Counts returns document and chunk totals.
func (s *ChunkStore) Counts(ctx context.Context) (docs, chunks int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&docs); err != nil {
		return 0, 0, errors.Wrap(errors.KindIndexCorrupt, "count documents", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, errors.Wrap(errors.KindIndexCorrupt, "count chunks", err)
	}
	return docs, chunks, nil
}

func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanChunks(rows *sql.Rows) ([]*StoredChunk, error) {
	var chunks []*StoredChunk
	for rows.Next() {
		var ch StoredChunk
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.Path, &ch.Seq, &ch.Text, &ch.Heading, &blob); err != nil {
			return nil, errors.Wrap(errors.KindIndexCorrupt, "scan chunk row", err)
		}
		emb, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		ch.Embedding = emb
		chunks = append(chunks, &ch)
	}
	return chunks, rows.Err()
}

// encodeEmbedding packs a vector as little-endian float32.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.New(errors.KindIndexCorrupt, "embedding blob has invalid length")
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
