package dialogue

import (
	"fmt"
	"math/rand/v2"
)

// Policy picks the index of the next speaker. Implementations must be pure:
// the same step and roster always yield the same index.
type Policy interface {
	Select(step int, roster []string) int
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(step int, roster []string) int

// Select calls f.
func (f PolicyFunc) Select(step int, roster []string) int { return f(step, roster) }

// RoundRobin cycles through the roster in order.
type RoundRobin struct{}

// Select returns step mod len(roster).
func (RoundRobin) Select(step int, roster []string) int {
	if len(roster) == 0 {
		return -1
	}
	return step % len(roster)
}

// Interleaved gives index 0 (a narrator or host) every even step and cycles
// the rest on odd steps: 0,1,0,2,0,3,0,1,...
type Interleaved struct{}

// Select implements the interleaved rotation. A single-agent roster always speaks.
func (Interleaved) Select(step int, roster []string) int {
	n := len(roster)
	if n == 0 {
		return -1
	}
	if step%2 == 0 || n == 1 {
		return 0
	}
	return (step/2)%(n-1) + 1
}

// Weighted picks speakers at random in proportion to Weights, seeded so the
// choice depends only on (Seed, step). Missing weights count as 1.
type Weighted struct {
	Weights []float64
	Seed    uint64
}

// Select draws an index for step.
func (w Weighted) Select(step int, roster []string) int {
	n := len(roster)
	if n == 0 {
		return -1
	}
	weights := make([]float64, n)
	var total float64
	for i := range weights {
		weights[i] = 1
		if i < len(w.Weights) {
			weights[i] = w.Weights[i]
		}
		if weights[i] < 0 {
			weights[i] = 0
		}
		total += weights[i]
	}
	if total == 0 {
		return step % n
	}
	r := rand.New(rand.NewPCG(w.Seed, uint64(step))).Float64() * total
	for i, wt := range weights {
		if r < wt {
			return i
		}
		r -= wt
	}
	return n - 1
}

// PolicyByName resolves "round_robin", "interleaved" or "weighted".
func PolicyByName(name string, weights []float64, seed uint64) (Policy, error) {
	switch name {
	case "", "interleaved":
		return Interleaved{}, nil
	case "round_robin":
		return RoundRobin{}, nil
	case "weighted":
		return Weighted{Weights: weights, Seed: seed}, nil
	default:
		return nil, fmt.Errorf("unknown selection policy %q", name)
	}
}
