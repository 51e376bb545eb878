package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vaultsearch/vaultsearch/internal/errors"
	"github.com/vaultsearch/vaultsearch/internal/index"
	"github.com/vaultsearch/vaultsearch/internal/provider"
)

// Engine runs hybrid queries against index snapshots. It is stateless
// across queries; the snapshot is passed per call so the daemon can
// swap snapshots underneath it.
type Engine struct {
	prov    provider.Provider
	fusion  *fusion
	weights Weights
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the fusion weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithRRFConstant overrides the RRF smoothing constant.
func WithRRFConstant(k int) Option {
	return func(e *Engine) { e.fusion = newFusion(k, e.weights) }
}

// NewEngine creates an engine over the given provider.
func NewEngine(prov provider.Provider, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		prov:    prov,
		weights: DefaultWeights(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fusion == nil {
		e.fusion = newFusion(DefaultRRFConstant, e.weights)
	}
	return e
}

// Search executes one query against snap. Results are documents, each
// represented by its best-matching chunk, ordered by score descending
// with path as the tie-break. Identical inputs produce identical output.
func (e *Engine) Search(ctx context.Context, snap *index.Snapshot, q Query) ([]Hit, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return []Hit{}, nil
	}
	topN := q.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	if topN > MaxTopN {
		topN = MaxTopN
	}
	pool := candidatePool(topN)

	lex, vec, err := e.gather(ctx, snap, text, pool)
	if err != nil {
		return nil, err
	}

	candidates := e.fusion.fuse(lex, vec)
	if len(candidates) > pool {
		candidates = candidates[:pool]
	}
	if len(candidates) == 0 {
		return []Hit{}, nil
	}

	texts, paths, err := e.loadChunks(ctx, snap, candidates)
	if err != nil {
		return nil, err
	}

	if !q.Fast {
		if err := e.rerank(ctx, text, candidates, texts, paths); err != nil {
			return nil, err
		}
	}

	hits, err := e.aggregate(ctx, snap, candidates, texts, paths)
	if err != nil {
		return nil, err
	}

	if q.MinScore > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Score >= q.MinScore {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	if len(hits) > topN {
		hits = hits[:topN]
	}
	assignRanks(hits)
	return hits, nil
}

// gather runs the lexical and semantic candidate searches in parallel.
// The query embedding failing is fatal: semantic retrieval is not
// optional in this pipeline.
func (e *Engine) gather(ctx context.Context, snap *index.Snapshot, text string, pool int) ([]index.LexicalHit, []index.VectorHit, error) {
	var (
		lex []index.LexicalHit
		vec []index.VectorHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lex, err = snap.Lexical.Search(gctx, text, pool)
		return err
	})
	g.Go(func() error {
		embedding, err := e.prov.Embed(gctx, text)
		if err != nil {
			return err
		}
		vec, err = snap.Vector.Search(embedding, pool)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return lex, vec, nil
}

// loadChunks resolves candidate chunk IDs to their stored text and
// owning path. A missing chunk means the snapshot's pieces disagree.
func (e *Engine) loadChunks(ctx context.Context, snap *index.Snapshot, candidates []*fused) (texts []string, paths []string, err error) {
	texts = make([]string, len(candidates))
	paths = make([]string, len(candidates))
	for i, c := range candidates {
		chunk, err := snap.Chunks.Chunk(ctx, c.chunkID)
		if err != nil {
			if errors.IsKind(err, errors.KindIndexCorrupt) {
				return nil, nil, err
			}
			return nil, nil, errors.Wrap(errors.KindIndexCorrupt, "read chunk from store", err).WithPath(snap.Dir)
		}
		if chunk == nil {
			return nil, nil, errors.Newf(errors.KindIndexCorrupt,
				"chunk %s indexed but missing from store", c.chunkID).WithPath(snap.Dir)
		}
		texts[i] = chunk.Text
		paths[i] = chunk.Path
	}
	return texts, paths, nil
}

// rerank rescores candidates with the provider and re-sorts them. Raw
// reranker scores are arbitrary logits, often all negative, so they are
// min-max normalized over the candidate set to preserve the reranker's
// ordering in the final scores.
func (e *Engine) rerank(ctx context.Context, query string, candidates []*fused, texts, paths []string) error {
	scores, err := e.prov.Rerank(ctx, query, texts)
	if err != nil {
		return errors.Wrap(errors.KindProvider, "rerank candidates", err).
			WithSuggestion("retry with --fast to skip reranking")
	}
	if len(scores) != len(texts) {
		return errors.Newf(errors.KindProvider,
			"reranker returned %d scores for %d candidates", len(scores), len(texts)).
			WithSuggestion("retry with --fast to skip reranking")
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	span := max - min

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return candidates[order[a]].chunkID < candidates[order[b]].chunkID
	})

	reordered := make([]*fused, len(candidates))
	retexts := make([]string, len(texts))
	repaths := make([]string, len(paths))
	for i, idx := range order {
		c := candidates[idx]
		if span > 0 {
			c.score = (scores[idx] - min) / span
		} else {
			c.score = 1
		}
		reordered[i] = c
		retexts[i] = texts[idx]
		repaths[i] = paths[idx]
	}
	copy(candidates, reordered)
	copy(texts, retexts)
	copy(paths, repaths)
	return nil
}

// aggregate collapses chunk candidates into one hit per document,
// keeping each document's best chunk.
func (e *Engine) aggregate(ctx context.Context, snap *index.Snapshot, candidates []*fused, texts, paths []string) ([]Hit, error) {
	best := make(map[string]int, len(candidates))
	for i := range candidates {
		if _, seen := best[paths[i]]; !seen {
			best[paths[i]] = i
		}
	}

	hits := make([]Hit, 0, len(best))
	for path, i := range best {
		doc, err := snap.Chunks.Document(ctx, path)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, errors.Newf(errors.KindIndexCorrupt,
				"document %s indexed but missing from store", path).WithPath(snap.Dir)
		}
		hits = append(hits, Hit{
			Path:    path,
			Title:   doc.Title,
			Score:   candidates[i].score,
			Preview: makePreview(texts[i]),
		})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Path < hits[b].Path
	})
	return hits, nil
}

// assignRanks gives hits dense 1-based ranks: equal scores share a
// rank, and the next distinct score takes the next integer.
func assignRanks(hits []Hit) {
	rank := 0
	for i := range hits {
		if i == 0 || hits[i].Score != hits[i-1].Score {
			rank++
		}
		hits[i].Rank = rank
	}
}
