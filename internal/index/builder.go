package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vaultsearch/vaultsearch/internal/chunk"
	"github.com/vaultsearch/vaultsearch/internal/config"
	"github.com/vaultsearch/vaultsearch/internal/errors"
	"github.com/vaultsearch/vaultsearch/internal/provider"
	"github.com/vaultsearch/vaultsearch/internal/scanner"
)

// BuildStats summarizes one build.
type BuildStats struct {
	Documents int
	Chunks    int
	Added     int
	Changed   int
	Removed   int
	Unchanged int
	Skipped   int
	Full      bool
	Duration  time.Duration
}

// Builder produces index snapshots from the vault. At most one build
// runs at a time per builder.
type Builder struct {
	store   *Store
	scanner *scanner.Scanner
	chunker *chunk.Chunker
	prov    provider.Provider
	cfg     *config.Config
	logger  *slog.Logger

	mu sync.Mutex
}

// NewBuilder wires a builder over an existing snapshot store.
func NewBuilder(store *Store, cfg *config.Config, prov provider.Provider, logger *slog.Logger) *Builder {
	return &Builder{
		store:   store,
		scanner: scanner.New(cfg.ExcludeDirs),
		chunker: chunk.New(chunk.Options{
			MaxChunkSize: cfg.Search.ChunkSize,
			Overlap:      cfg.Search.ChunkOverlap,
		}),
		prov:   prov,
		cfg:    cfg,
		logger: logger,
	}
}

// Build performs a full rebuild. Any provider failure aborts the build;
// the current snapshot, if one exists, stays published.
func (b *Builder) Build(ctx context.Context) (*BuildStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.build(ctx)
}

func (b *Builder) build(ctx context.Context) (*BuildStats, error) {
	files, err := b.scanVault(ctx)
	if err != nil {
		return nil, err
	}
	return b.buildFrom(ctx, files)
}

func (b *Builder) buildFrom(ctx context.Context, files []*scanner.FileInfo) (*BuildStats, error) {
	start := time.Now()

	out, err := b.newStaging()
	if err != nil {
		return nil, err
	}
	defer out.discard()

	stats := &BuildStats{Full: true}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := b.readDocument(f)
		if err != nil {
			stats.Skipped++
			b.logger.Warn("skipping unreadable document", "path", f.Path, "error", err)
			continue
		}
		doc, err := b.embedContent(ctx, f, content)
		if err != nil {
			return nil, err
		}
		if err := out.writeDocument(ctx, doc); err != nil {
			return nil, err
		}
		stats.Documents++
		stats.Chunks += len(doc.chunks)
	}
	stats.Added = stats.Documents

	if err := b.finish(out, stats); err != nil {
		return nil, err
	}
	stats.Duration = time.Since(start)
	b.logger.Info("index built",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"skipped", stats.Skipped,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// Update performs an incremental build against the current snapshot.
// Unchanged documents are carried over without touching the provider.
// Falls back to a full rebuild when there is no usable previous snapshot
// or its manifest is incompatible with the current configuration.
func (b *Builder) Update(ctx context.Context) (*BuildStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// The previous state is read from the manifest and chunk store only.
	// Opening the lexical index would contend on its file lock with a
	// daemon that still has the snapshot open.
	prev, err := b.store.openPrevious()
	if err != nil {
		if !errors.IsKind(err, errors.KindIndexNotFound) {
			b.logger.Warn("previous snapshot unusable, rebuilding", "error", err)
		}
		return b.build(ctx)
	}
	defer prev.Close()

	if !prev.Manifest.Compatible(b.sourceRoot(), b.prov.ModelName(), b.prov.Dimensions()) {
		b.logger.Info("index settings changed, rebuilding")
		return b.build(ctx)
	}

	files, err := b.scanVault(ctx)
	if err != nil {
		return nil, err
	}
	return b.updateFrom(ctx, prev, files)
}

func (b *Builder) updateFrom(ctx context.Context, prev *previous, files []*scanner.FileInfo) (*BuildStats, error) {
	start := time.Now()
	prevDocs, err := prev.Chunks.Documents(ctx)
	if err != nil {
		b.logger.Warn("previous snapshot unreadable, rebuilding", "error", err)
		return b.build(ctx)
	}

	stats := &BuildStats{}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Path] = true
		old, ok := prevDocs[f.Path]
		switch {
		case ok && old.ModTime == f.ModTime.UnixNano() && old.Size == f.Size:
			stats.Unchanged++
		case ok:
			stats.Changed++
		default:
			stats.Added++
		}
	}
	for path := range prevDocs {
		if !seen[path] {
			stats.Removed++
		}
	}

	if stats.Added == 0 && stats.Changed == 0 && stats.Removed == 0 {
		stats.Documents = stats.Unchanged
		stats.Duration = time.Since(start)
		b.logger.Debug("index up to date", "documents", stats.Documents)
		return stats, nil
	}

	out, err := b.newStaging()
	if err != nil {
		return nil, err
	}
	defer out.discard()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		old, ok := prevDocs[f.Path]
		var doc *docPayload
		if ok && old.ModTime == f.ModTime.UnixNano() && old.Size == f.Size {
			doc, err = b.carryOver(ctx, prev.Chunks, old)
			if err != nil {
				return nil, err
			}
		} else if content, rerr := b.readDocument(f); rerr != nil {
			stats.Skipped++
			if !ok {
				b.logger.Warn("skipping unreadable document", "path", f.Path, "error", rerr)
				continue
			}
			// Keep the previous version of a changed document rather
			// than dropping it from the index.
			b.logger.Warn("document unreadable, keeping previous version", "path", f.Path, "error", rerr)
			doc, err = b.carryOver(ctx, prev.Chunks, old)
			if err != nil {
				return nil, err
			}
		} else {
			doc, err = b.embedContent(ctx, f, content)
			if err != nil {
				if !errors.IsKind(err, errors.KindProvider) {
					return nil, err
				}
				stats.Skipped++
				if !ok {
					b.logger.Warn("embedding failed, skipping new document", "path", f.Path, "error", err)
					continue
				}
				b.logger.Warn("embedding failed, keeping previous version", "path", f.Path, "error", err)
				doc, err = b.carryOver(ctx, prev.Chunks, old)
				if err != nil {
					return nil, err
				}
			}
		}
		if err := out.writeDocument(ctx, doc); err != nil {
			return nil, err
		}
		stats.Documents++
		stats.Chunks += len(doc.chunks)
	}

	if err := b.finish(out, stats); err != nil {
		return nil, err
	}
	stats.Duration = time.Since(start)
	b.logger.Info("index updated",
		"added", stats.Added,
		"changed", stats.Changed,
		"removed", stats.Removed,
		"unchanged", stats.Unchanged,
		"skipped", stats.Skipped,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}

func (b *Builder) sourceRoot() string {
	abs, err := filepath.Abs(b.cfg.VaultPath)
	if err != nil {
		return b.cfg.VaultPath
	}
	return abs
}

func (b *Builder) scanVault(ctx context.Context) ([]*scanner.FileInfo, error) {
	files, fileErrs, err := b.scanner.ScanAll(ctx, &scanner.ScanOptions{
		RootDir:     b.cfg.VaultPath,
		ExcludeDirs: b.cfg.ExcludeDirs,
	})
	if err != nil {
		return nil, err
	}
	for _, fe := range fileErrs {
		b.logger.Warn("skipping unreadable file", "error", fe)
	}
	return files, nil
}

// docPayload is one document ready to be written into a staging snapshot.
type docPayload struct {
	meta   *DocumentMeta
	chunks []*StoredChunk
}

// readDocument loads a scanned file's content. Failures here affect
// only this document: callers skip it with a warning.
func (b *Builder) readDocument(f *scanner.FileInfo) (string, error) {
	raw, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "read document", err).WithPath(f.Path)
	}
	return string(raw), nil
}

func (b *Builder) embedContent(ctx context.Context, f *scanner.FileInfo, content string) (*docPayload, error) {
	title := chunk.Title(content, f.Path)
	pieces := b.chunker.Chunk(f.Path, content)

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vecs, err := b.prov.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	stored := make([]*StoredChunk, len(pieces))
	for i, p := range pieces {
		stored[i] = &StoredChunk{
			ID:        p.ID,
			Path:      p.Path,
			Seq:       p.Seq,
			Text:      p.Text,
			Heading:   p.Heading,
			Embedding: vecs[i],
		}
	}
	return &docPayload{
		meta: &DocumentMeta{
			Path:       f.Path,
			Title:      title,
			ModTime:    f.ModTime.UnixNano(),
			Size:       f.Size,
			ChunkCount: len(stored),
		},
		chunks: stored,
	}, nil
}

// carryOver copies an unchanged document, embeddings included, from the
// previous snapshot's chunk store.
func (b *Builder) carryOver(ctx context.Context, prev *ChunkStore, old *DocumentMeta) (*docPayload, error) {
	chunks, err := prev.ChunksForPath(ctx, old.Path)
	if err != nil {
		return nil, err
	}
	return &docPayload{meta: old, chunks: chunks}, nil
}

// staging is a snapshot under construction in a private directory.
type staging struct {
	dir       string
	lexical   *LexicalIndex
	vector    *VectorIndex
	chunks    *ChunkStore
	published bool
}

func (b *Builder) newStaging() (*staging, error) {
	dir := b.store.StagingDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "create staging directory", err).WithPath(dir)
	}
	lexical, err := NewLexicalIndex(filepath.Join(dir, lexicalDir))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	vector, err := NewVectorIndex(b.prov.Dimensions())
	if err != nil {
		_ = lexical.Close()
		_ = os.RemoveAll(dir)
		return nil, err
	}
	chunks, err := NewChunkStore(filepath.Join(dir, chunksFile))
	if err != nil {
		_ = lexical.Close()
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return &staging{dir: dir, lexical: lexical, vector: vector, chunks: chunks}, nil
}

func (st *staging) writeDocument(ctx context.Context, doc *docPayload) error {
	ids := make([]string, len(doc.chunks))
	texts := make([]string, len(doc.chunks))
	titles := make([]string, len(doc.chunks))
	vecs := make([][]float32, len(doc.chunks))
	for i, c := range doc.chunks {
		ids[i] = c.ID
		texts[i] = c.Text
		titles[i] = doc.meta.Title
		vecs[i] = c.Embedding
	}
	if err := st.lexical.Index(ids, texts, titles); err != nil {
		return err
	}
	if err := st.vector.Add(ids, vecs); err != nil {
		return err
	}
	return st.chunks.PutDocument(ctx, doc.meta, doc.chunks)
}

// finish seals the staging directory and swaps it in as CURRENT.
func (b *Builder) finish(out *staging, stats *BuildStats) error {
	if err := out.vector.Save(filepath.Join(out.dir, vectorFile)); err != nil {
		return err
	}
	if err := out.lexical.Close(); err != nil {
		return errors.Wrap(errors.KindInternal, "close lexical index", err).WithPath(out.dir)
	}
	if err := out.chunks.Close(); err != nil {
		return errors.Wrap(errors.KindInternal, "close chunk store", err).WithPath(out.dir)
	}
	_ = out.vector.Close()

	manifest := &Manifest{
		SchemaVersion:  SchemaVersion,
		SourceRoot:     b.sourceRoot(),
		DocumentCount:  stats.Documents,
		ChunkCount:     stats.Chunks,
		BuiltAt:        time.Now().UTC(),
		EmbeddingModel: b.prov.ModelName(),
		Dimensions:     b.prov.Dimensions(),
	}
	if err := WriteManifest(out.dir, manifest); err != nil {
		return err
	}

	if _, err := b.store.Publish(out.dir); err != nil {
		return err
	}
	out.published = true
	return nil
}

// discard abandons an unpublished staging directory.
func (st *staging) discard() {
	if st.published {
		return
	}
	_ = st.lexical.Close()
	_ = st.vector.Close()
	_ = st.chunks.Close()
	_ = os.RemoveAll(st.dir)
}
