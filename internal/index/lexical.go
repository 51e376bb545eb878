package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// LexicalIndex wraps a bleve index over chunk text, scored by bleve's
// tf-idf ranking. Keys are chunk IDs.
type LexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

type lexicalDoc struct {
	Content string `json:"content"`
	Title   string `json:"title"`
}

// LexicalHit is one scored chunk from lexical search.
type LexicalHit struct {
	ChunkID string
	Score   float64
}

// NewLexicalIndex creates a fresh index at path, or in memory when path
// is empty.
func NewLexicalIndex(path string) (*LexicalIndex, error) {
	mapping := bleve.NewIndexMapping()
	mapping.DefaultAnalyzer = "en"

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		idx, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "create lexical index", err).WithPath(path)
	}
	return &LexicalIndex{index: idx}, nil
}

// OpenLexicalIndex opens an existing index, validating its structure
// first. Structural defects report KindIndexCorrupt.
func OpenLexicalIndex(path string) (*LexicalIndex, error) {
	if err := validateLexicalDir(path); err != nil {
		return nil, err
	}
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindIndexCorrupt, "cannot open lexical index", err).WithPath(path)
	}
	return &LexicalIndex{index: idx}, nil
}

// validateLexicalDir checks the bleve directory before opening. Catches
// truncated writes that bleve.Open reports confusingly.
func validateLexicalDir(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(errors.KindIndexCorrupt, "lexical index missing", err).WithPath(path)
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if err != nil {
		return errors.Wrap(errors.KindIndexCorrupt, "lexical index metadata missing", err).WithPath(metaPath)
	}
	if info.Size() == 0 {
		return errors.New(errors.KindIndexCorrupt, "lexical index metadata is empty").WithPath(metaPath)
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return errors.Wrap(errors.KindIndexCorrupt, "cannot read lexical index metadata", err).WithPath(metaPath)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return errors.Wrap(errors.KindIndexCorrupt, "lexical index metadata is not valid JSON", err).WithPath(metaPath)
	}
	return nil
}

// Index adds chunks in one batch.
func (l *LexicalIndex) Index(chunkIDs []string, texts, titles []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New(errors.KindInternal, "lexical index is closed")
	}

	batch := l.index.NewBatch()
	for i, id := range chunkIDs {
		doc := lexicalDoc{Content: texts[i]}
		if i < len(titles) {
			doc.Title = titles[i]
		}
		if err := batch.Index(id, doc); err != nil {
			return errors.Wrap(errors.KindInternal, "index chunk", err)
		}
	}
	if err := l.index.Batch(batch); err != nil {
		return errors.Wrap(errors.KindInternal, "execute index batch", err)
	}
	return nil
}

// Search returns chunks matching the query in descending score order.
// limit <= 0 returns every match.
func (l *LexicalIndex) Search(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, errors.New(errors.KindInternal, "lexical index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	if limit <= 0 {
		count, err := l.index.DocCount()
		if err != nil {
			return nil, errors.Wrap(errors.KindInternal, "count documents", err)
		}
		limit = int(count)
		if limit == 0 {
			return nil, nil
		}
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")
	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "lexical search", err)
	}

	hits := make([]LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, LexicalHit{ChunkID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Count returns the number of indexed chunks.
func (l *LexicalIndex) Count() (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, errors.New(errors.KindInternal, "lexical index is closed")
	}
	count, err := l.index.DocCount()
	return int(count), err
}

func (l *LexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}
