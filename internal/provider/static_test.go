package provider

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedDeterministic(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	first, err := p.Embed(ctx, "oauth token refresh")
	require.NoError(t, err)
	second, err := p.Embed(ctx, "oauth token refresh")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, StaticDimensions)
}

func TestStaticEmbedNormalized(t *testing.T) {
	p := NewStaticProvider()

	vec, err := p.Embed(context.Background(), "some text with several words")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-5)
}

func TestStaticEmbedEmptyText(t *testing.T) {
	p := NewStaticProvider()

	vec, err := p.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StaticDimensions), vec)
}

func TestStaticEmbedBatchOrder(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	texts := []string{"alpha", "beta", "gamma"}
	batch, err := p.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := p.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticSimilarTextsCloser(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	query, err := p.Embed(ctx, "database migration guide")
	require.NoError(t, err)
	related, err := p.Embed(ctx, "guide to database migration steps")
	require.NoError(t, err)
	unrelated, err := p.Embed(ctx, "sourdough bread recipe")
	require.NoError(t, err)

	assert.Greater(t, dot(query, related), dot(query, unrelated))
}

func TestStaticRerankScoresOverlap(t *testing.T) {
	p := NewStaticProvider()

	scores, err := p.Rerank(context.Background(), "oauth setup guide", []string{
		"complete oauth setup guide for the api",
		"shopping list",
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], scores[1])
}

func TestStaticClosed(t *testing.T) {
	p := NewStaticProvider()
	require.NoError(t, p.Close())

	_, err := p.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, p.Available(context.Background()))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
