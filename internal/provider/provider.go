// Package provider abstracts the embedding and rerank backend.
//
// Providers are stateless and safe for concurrent use. Every call takes a
// context; failures surface as KindProvider errors so callers can decide
// whether the operation must abort or degrade.
package provider

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the batch size for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single embedding request.
	MaxBatchSize = 256

	// DefaultTimeout bounds one HTTP round trip.
	DefaultTimeout = 30 * time.Second

	// StaticDimensions is the vector width of the static provider.
	StaticDimensions = 256
)

// Provider generates embeddings and reranks candidate texts.
type Provider interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Rerank scores texts for relevance to query. The returned scores
	// align with texts by index; higher is more relevant.
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)

	// Dimensions is the embedding vector width.
	Dimensions() int

	// ModelName identifies the embedding model.
	ModelName() string

	// Available reports whether the provider is ready to serve.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors pass through.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
