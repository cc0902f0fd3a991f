// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Provider generates embedding vectors from text. Dims is fixed for the
// lifetime of a provider and must match every vector it returns.
type Provider interface {
	Embed(ctx context.Context, text string) (Vector, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize returns a unit-length copy of v. A zero vector is returned unchanged.
func Normalize(v Vector) Vector {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make(Vector, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Options selects and configures a provider.
type Options struct {
	Provider  string // hash | ollama | openai
	Model     string
	BaseURL   string
	APIKey    string
	Dims      int
	CacheSize int64 // entries; 0 disables caching
}

// New builds a provider from options, wrapping it in a cache when CacheSize > 0.
func New(opts Options) (Provider, error) {
	var p Provider
	switch opts.Provider {
	case "", "hash":
		p = NewHashEmbedder(opts.Dims)
	case "ollama":
		model := opts.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		p = NewOllamaEmbedder(opts.BaseURL, model, opts.Dims)
	case "openai":
		p = NewOpenAIEmbedder(opts.BaseURL, opts.APIKey, opts.Model, opts.Dims)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}

	if opts.CacheSize > 0 {
		return NewCached(p, opts.CacheSize)
	}
	return p, nil
}

func checkDims(v Vector, want int) error {
	if want > 0 && len(v) != want {
		return fmt.Errorf("embedding has %d dims, want %d", len(v), want)
	}
	return nil
}
