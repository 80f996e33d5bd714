package vectorstore

import (
	"context"
	"testing"
)

func TestChromemIndexSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewChromem().Open(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}
	for i, v := range vectors {
		if err := idx.Insert(ctx, uint64(i), v); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	ids, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Errorf("got %v, want [0 2]", ids)
	}

	// k beyond the collection size is clamped rather than rejected.
	ids, err = idx.Search(ctx, []float32{0, 1, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 {
		t.Errorf("got %v, want 3 ids led by 1", ids)
	}
}

func TestChromemIndexReset(t *testing.T) {
	ctx := context.Background()
	idx, err := NewChromem().Open(ctx, "bob", 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Insert(ctx, 0, []float32{1, 0}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := idx.Insert(ctx, 1, []float32{0, 0}); err != nil {
		t.Fatalf("zero vector insert should be skipped, got %v", err)
	}
	if err := idx.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	ids, err := idx.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected empty index after reset, got %v", ids)
	}
}
