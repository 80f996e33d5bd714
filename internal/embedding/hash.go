package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDimension = 256

// HashProvider is a deterministic bag-of-words embedder. Each lowercased token
// is hashed into a bucket with a hashed sign, and the result is unit-normalized,
// so texts that share words have positive cosine similarity. It needs no network
// and is used for offline runs and tests.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hash embedder; dim <= 0 selects 256.
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = defaultHashDimension
	}
	return &HashProvider{dimension: dim}
}

// Embed never fails.
func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.embed(t)
	}
	return out, nil
}

func (p *HashProvider) embed(text string) []float32 {
	vec := make([]float32, p.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		sum := h.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(p.dimension)] += sign
	}
	return Normalize(vec)
}

// Dimension returns the fixed vector size.
func (p *HashProvider) Dimension() int { return p.dimension }

// Normalize scales v to unit length in place. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}
