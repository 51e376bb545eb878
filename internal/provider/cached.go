package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of embeddings kept in memory.
const DefaultCacheSize = 1024

// CachedProvider wraps a Provider with an LRU cache over Embed and
// EmbedBatch. Repeated queries skip the provider round trip entirely.
// Rerank is never cached; its inputs rarely repeat.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps inner with a cache of the given size.
func NewCachedProvider(inner Provider, cacheSize int) *CachedProvider {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedProvider{inner: inner, cache: cache}
}

// cacheKey hashes text plus model name so a model switch never serves
// stale vectors.
func (c *CachedProvider) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(hash[:])
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missIndices []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
			continue
		}
		missIndices = append(missIndices, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	embedded, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIndices {
		results[idx] = embedded[j]
		c.cache.Add(c.cacheKey(texts[idx]), embedded[j])
	}
	return results, nil
}

func (c *CachedProvider) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	return c.inner.Rerank(ctx, query, texts)
}

func (c *CachedProvider) Dimensions() int                  { return c.inner.Dimensions() }
func (c *CachedProvider) ModelName() string                { return c.inner.ModelName() }
func (c *CachedProvider) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedProvider) Close() error                     { return c.inner.Close() }
