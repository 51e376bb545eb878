package provider

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// StaticProvider generates deterministic hash-feature embeddings and a
// token-overlap rerank score. It needs no network or model files, which
// makes it the offline fallback and the test workhorse. Semantic quality
// is far below a real model.
type StaticProvider struct {
	mu     sync.RWMutex
	closed bool
}

// Feature weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticProvider creates a static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

var _ Provider = (*StaticProvider)(nil)

func (p *StaticProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errors.New(errors.KindProvider, "provider is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(p.generateVector(trimmed)), nil
}

func (p *StaticProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = emb
	}
	return results, nil
}

// Rerank scores each text by weighted token overlap with the query.
func (p *StaticProvider) Rerank(_ context.Context, query string, texts []string) ([]float64, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errors.New(errors.KindProvider, "provider is closed")
	}

	queryTokens := make(map[string]bool)
	for _, t := range tokenize(query) {
		queryTokens[t] = true
	}

	scores := make([]float64, len(texts))
	if len(queryTokens) == 0 {
		return scores, nil
	}
	for i, text := range texts {
		seen := make(map[string]bool)
		matched := 0
		for _, t := range tokenize(text) {
			if queryTokens[t] && !seen[t] {
				matched++
				seen[t] = true
			}
		}
		scores[i] = float64(matched) / float64(len(queryTokens))
	}
	return scores, nil
}

func (p *StaticProvider) Dimensions() int   { return StaticDimensions }
func (p *StaticProvider) ModelName() string { return "static" }

func (p *StaticProvider) Available(_ context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

func (p *StaticProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// generateVector builds a hash-feature vector: unigram tokens at weight
// 0.7 plus character trigrams at weight 0.3.
func (p *StaticProvider) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)
	for _, token := range tokenize(text) {
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
	}
	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
	}
	return vector
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		if lower := strings.ToLower(word); lower != "" {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

func normalizeForNgrams(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
