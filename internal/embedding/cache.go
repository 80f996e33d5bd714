package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached memoizes another Provider's vectors by exact text. Agents frequently
// re-embed the same query strings (their own name, repeated dialogue lines).
type Cached struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCached wraps inner with a cache holding up to maxItems vectors.
func NewCached(inner Provider, maxItems int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
		// Each entry costs 1, so MaxCost counts vectors.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed serves hits from the cache and sends only misses to the inner provider.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.cache.Set(missing[j], v, 1)
	}
	c.cache.Wait()
	return out, nil
}

// Dimension delegates to the inner provider.
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Close releases the cache goroutines.
func (c *Cached) Close() { c.cache.Close() }
