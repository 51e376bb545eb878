package search

import (
	"sort"

	"github.com/vaultsearch/vaultsearch/internal/index"
)

// DefaultRRFConstant is the RRF smoothing parameter. k=60 is the
// widely used default.
const DefaultRRFConstant = 60

// fused holds one chunk's combined ranking state.
type fused struct {
	chunkID  string
	score    float64
	lexScore float64
	lexRank  int
	vecScore float64
	vecRank  int
	inBoth   bool
}

// fusion combines lexical and vector result lists with weighted
// Reciprocal Rank Fusion.
//
// score(c) = w_lex/(k+rank_lex) + w_sem/(k+rank_sem)
//
// A chunk absent from one list contributes at missing_rank =
// max(len(lex), len(vec)) + 1 for that source, so presence in both
// lists always beats presence in one at equal rank.
type fusion struct {
	k       int
	weights Weights
}

func newFusion(k int, weights Weights) *fusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &fusion{k: k, weights: weights}
}

// fuse merges the two candidate lists and normalizes scores so the top
// candidate scores 1.0. The returned slice is sorted, deterministic for
// identical inputs.
func (f *fusion) fuse(lex []index.LexicalHit, vec []index.VectorHit) []*fused {
	if len(lex) == 0 && len(vec) == 0 {
		return []*fused{}
	}

	byID := make(map[string]*fused, len(lex)+len(vec))
	get := func(id string) *fused {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &fused{chunkID: id}
		byID[id] = c
		return c
	}

	for i, h := range lex {
		c := get(h.ChunkID)
		c.lexScore = h.Score
		c.lexRank = i + 1
		c.score += f.weights.Lexical / float64(f.k+i+1)
	}
	for i, h := range vec {
		c := get(h.ChunkID)
		c.vecScore = h.Score
		c.vecRank = i + 1
		c.score += f.weights.Semantic / float64(f.k+i+1)
		if c.lexRank > 0 {
			c.inBoth = true
		}
	}

	missing := len(lex)
	if len(vec) > missing {
		missing = len(vec)
	}
	missing++
	for _, c := range byID {
		if c.lexRank == 0 {
			c.score += f.weights.Lexical / float64(f.k+missing)
		}
		if c.vecRank == 0 {
			c.score += f.weights.Semantic / float64(f.k+missing)
		}
	}

	out := make([]*fused, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })

	if max := out[0].score; max > 0 {
		for _, c := range out {
			c.score /= max
		}
	}
	return out
}

// less orders candidates by score, then both-lists membership, then
// lexical score, then chunk ID for a stable final ordering.
func less(a, b *fused) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.inBoth != b.inBoth {
		return a.inBoth
	}
	if a.lexScore != b.lexScore {
		return a.lexScore > b.lexScore
	}
	return a.chunkID < b.chunkID
}
