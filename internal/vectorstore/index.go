// Package vectorstore narrows memory candidate sets with nearest-neighbor search.
// An Index is an acceleration structure only: the memory ranker rescores every
// candidate it returns.
package vectorstore

import "context"

// Index stores vectors under record ordinals and returns the nearest ordinals.
type Index interface {
	Insert(ctx context.Context, id uint64, vector []float32) error
	Search(ctx context.Context, vector []float32, k int) ([]uint64, error)
	Reset(ctx context.Context) error
}

// Factory opens the index that backs one agent's memory.
type Factory interface {
	Open(ctx context.Context, namespace string, dimension int) (Index, error)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
