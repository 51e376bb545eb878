// Package search implements hybrid retrieval over an index snapshot:
// lexical and vector candidates fused with Reciprocal Rank Fusion,
// optionally reranked, then aggregated per document.
package search

import "unicode"

const (
	// DefaultTopN is the result count when the caller does not set one.
	DefaultTopN = 10

	// MaxTopN caps a single query.
	MaxTopN = 100

	// PreviewLength is the preview snippet length in runes.
	PreviewLength = 200

	// minCandidatePool is the smallest fused candidate set kept for
	// reranking and aggregation.
	minCandidatePool = 20
)

// Query is one search request.
type Query struct {
	// Text is the raw query string.
	Text string

	// TopN is the maximum number of documents to return.
	TopN int

	// Fast skips the rerank stage.
	Fast bool

	// MinScore drops hits scoring below it. Zero keeps everything.
	MinScore float64
}

// Hit is one document in a result set.
type Hit struct {
	Rank    int     `json:"rank"`
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// Weights control the lexical/semantic balance during fusion.
type Weights struct {
	Lexical  float64
	Semantic float64
}

// DefaultWeights favors semantic similarity, matching the index's
// natural-language content.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.40, Semantic: 0.60}
}

// candidatePool returns how many fused candidates to keep ahead of
// rerank and document aggregation.
func candidatePool(topN int) int {
	pool := 4 * topN
	if pool < minCandidatePool {
		pool = minCandidatePool
	}
	return pool
}

// makePreview collapses whitespace in text and truncates it to
// PreviewLength runes, appending an ellipsis when cut.
func makePreview(text string) string {
	collapsed := make([]rune, 0, len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && len(collapsed) > 0 {
			collapsed = append(collapsed, ' ')
		}
		space = false
		collapsed = append(collapsed, r)
	}
	if len(collapsed) <= PreviewLength {
		return string(collapsed)
	}
	return string(collapsed[:PreviewLength]) + "..."
}
