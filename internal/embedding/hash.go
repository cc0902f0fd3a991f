package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashDims matches all-MiniLM-L6-v2 so indexes stay swappable.
const DefaultHashDims = 384

// HashEmbedder is an offline, deterministic embedder using feature hashing
// over lowercase word tokens. Identical text always yields an identical vector
// and texts sharing words land closer together. It has no semantic model
// behind it; use it for tests and air-gapped setups.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder; dims <= 0 selects DefaultHashDims.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDims
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	vec := make(Vector, e.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	allZero := true
	for _, x := range vec {
		if x != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		vec[0] = 1
	}
	return Normalize(vec), nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) Dims() int { return e.dims }
