package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"
)

// CachedProvider memoizes embeddings by exact text. Concurrent requests for
// the same uncached text share one upstream call.
type CachedProvider struct {
	inner Provider
	cache *ristretto.Cache
	group singleflight.Group
}

// NewCached wraps p with an admission-controlled cache holding up to
// maxEntries vectors.
func NewCached(p Provider, maxEntries int64) (*CachedProvider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedProvider{inner: p, cache: cache}, nil
}

func (c *CachedProvider) Embed(ctx context.Context, text string) (Vector, error) {
	if v, ok := c.lookup(text); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(text, func() (interface{}, error) {
		v, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(text, v, 1)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(res.(Vector)), nil
}

// EmbedBatch serves hits from the cache and sends only misses upstream, in one call.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	var missIdx []int
	var missText []string
	for i, t := range texts {
		if v, ok := c.lookup(t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missText) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missText) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(missText))
	}
	for j, i := range missIdx {
		c.cache.Set(missText[j], vecs[j], 1)
		out[i] = clone(vecs[j])
	}
	return out, nil
}

func (c *CachedProvider) Dims() int { return c.inner.Dims() }

// Wait blocks until buffered cache writes are applied.
func (c *CachedProvider) Wait() { c.cache.Wait() }

// Close releases the cache.
func (c *CachedProvider) Close() { c.cache.Close() }

func (c *CachedProvider) lookup(text string) (Vector, bool) {
	v, ok := c.cache.Get(text)
	if !ok {
		return nil, false
	}
	return clone(v.(Vector)), true
}

func clone(v Vector) Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
