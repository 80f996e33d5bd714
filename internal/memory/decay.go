package memory

import (
	"math"
	"time"
)

// Recency is decayRate^hours since the last access. Future access times
// count as zero elapsed.
func Recency(decayRate float64, elapsed time.Duration) float64 {
	hours := elapsed.Hours()
	if hours <= 0 {
		return 1
	}
	return math.Pow(decayRate, hours)
}

// NormalizeImportance rescales importance linearly from [min,max] into [0,1].
func NormalizeImportance(importance, min, max float64) float64 {
	if max <= min {
		return 0
	}
	n := (importance - min) / (max - min)
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	}
	return n
}
