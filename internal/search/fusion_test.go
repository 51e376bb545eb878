package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsearch/vaultsearch/internal/index"
)

func TestFuseEmpty(t *testing.T) {
	f := newFusion(DefaultRRFConstant, DefaultWeights())
	out := f.fuse(nil, nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestFuseBothListsBeatsOne(t *testing.T) {
	f := newFusion(DefaultRRFConstant, DefaultWeights())

	lex := []index.LexicalHit{
		{ChunkID: "both", Score: 2.0},
		{ChunkID: "lexonly", Score: 1.5},
	}
	vec := []index.VectorHit{
		{ChunkID: "both", Score: 0.9},
		{ChunkID: "veconly", Score: 0.8},
	}

	out := f.fuse(lex, vec)
	require.Len(t, out, 3)
	assert.Equal(t, "both", out[0].chunkID)
	assert.True(t, out[0].inBoth)
	assert.False(t, out[1].inBoth)
}

func TestFuseTopScoreNormalizedToOne(t *testing.T) {
	f := newFusion(DefaultRRFConstant, DefaultWeights())

	out := f.fuse(
		[]index.LexicalHit{{ChunkID: "a", Score: 1}, {ChunkID: "b", Score: 0.5}},
		[]index.VectorHit{{ChunkID: "a", Score: 0.9}},
	)
	require.NotEmpty(t, out)
	assert.Equal(t, 1.0, out[0].score)
	for _, c := range out[1:] {
		assert.LessOrEqual(t, c.score, 1.0)
		assert.Greater(t, c.score, 0.0)
	}
}

func TestFuseMissingRankPenalty(t *testing.T) {
	f := newFusion(DefaultRRFConstant, Weights{Lexical: 0.5, Semantic: 0.5})

	// Both candidates sit at rank 1 of their own list; neither appears
	// in the other. Symmetric weights make them exact score ties, so the
	// lexical-score tie-break decides.
	out := f.fuse(
		[]index.LexicalHit{{ChunkID: "zz", Score: 1}},
		[]index.VectorHit{{ChunkID: "aa", Score: 1}},
	)
	require.Len(t, out, 2)
	assert.Equal(t, out[0].score, out[1].score)
	assert.Equal(t, "zz", out[0].chunkID)
}

func TestFuseDeterministic(t *testing.T) {
	f := newFusion(DefaultRRFConstant, DefaultWeights())
	lex := []index.LexicalHit{
		{ChunkID: "c1", Score: 3}, {ChunkID: "c2", Score: 2}, {ChunkID: "c3", Score: 1},
	}
	vec := []index.VectorHit{
		{ChunkID: "c3", Score: 0.9}, {ChunkID: "c4", Score: 0.8}, {ChunkID: "c1", Score: 0.7},
	}

	first := f.fuse(lex, vec)
	for i := 0; i < 10; i++ {
		again := f.fuse(lex, vec)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].chunkID, again[j].chunkID)
			assert.Equal(t, first[j].score, again[j].score)
		}
	}
}

func TestCandidatePool(t *testing.T) {
	assert.Equal(t, minCandidatePool, candidatePool(1))
	assert.Equal(t, minCandidatePool, candidatePool(5))
	assert.Equal(t, 40, candidatePool(10))
}
