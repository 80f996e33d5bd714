package embedding

import "math"

// Similarity maps two vectors to a relevance score in [0,1], higher is closer.
type Similarity func(a, b []float32) float64

// Cosine rescales cosine similarity from [-1,1] into [0,1].
// Mismatched or empty vectors score 0. A zero-norm vector has no
// direction and scores the neutral 0.5.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0.5
	}
	return clamp01((dot/(math.Sqrt(na)*math.Sqrt(nb)) + 1) / 2)
}

// Euclidean converts the distance between unit-normalized vectors into
// 1 - d/√2, clamped to [0,1].
func Euclidean(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return clamp01(1 - math.Sqrt(sum)/math.Sqrt2)
}

// ByName returns the similarity named "cosine" or "euclidean"; anything else is cosine.
func ByName(name string) Similarity {
	if name == "euclidean" {
		return Euclidean
	}
	return Cosine
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
