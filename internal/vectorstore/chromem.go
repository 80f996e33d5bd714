package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemDB is an in-process vector database holding one collection per agent.
type ChromemDB struct {
	db *chromem.DB
}

// NewChromem creates an empty in-memory database.
func NewChromem() *ChromemDB {
	return &ChromemDB{db: chromem.NewDB()}
}

// Open returns the index for namespace, creating its collection on first use.
func (c *ChromemDB) Open(_ context.Context, namespace string, _ int) (Index, error) {
	idx := &ChromemIndex{db: c.db, name: "memory_" + namespace}
	if err := idx.create(); err != nil {
		return nil, err
	}
	return idx, nil
}

// ChromemIndex is a single chromem collection.
type ChromemIndex struct {
	db   *chromem.DB
	name string
	col  *chromem.Collection
	mu   sync.RWMutex
}

func (i *ChromemIndex) create() error {
	// No embedding func: vectors always arrive precomputed.
	col, err := i.db.GetOrCreateCollection(i.name, nil, nil)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", i.name, err)
	}
	i.col = col
	return nil
}

// Insert adds one vector. Zero vectors cannot be normalized and are skipped.
func (i *ChromemIndex) Insert(ctx context.Context, id uint64, vector []float32) error {
	if isZero(vector) {
		return nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	key := strconv.FormatUint(id, 10)
	vec := make([]float32, len(vector))
	copy(vec, vector)
	err := i.col.AddDocument(ctx, chromem.Document{
		ID:        key,
		Content:   key,
		Embedding: vec,
	})
	if err != nil {
		return fmt.Errorf("add document %s: %w", key, err)
	}
	return nil
}

// Search returns up to k ordinals, nearest first.
func (i *ChromemIndex) Search(ctx context.Context, vector []float32, k int) ([]uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	// chromem-go rejects nResults larger than the collection.
	if n := i.col.Count(); k > n {
		k = n
	}
	if k <= 0 || isZero(vector) {
		return nil, nil
	}
	query := make([]float32, len(vector))
	copy(query, vector)
	results, err := i.col.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	ids := make([]uint64, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseUint(r.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Reset drops and recreates the collection.
func (i *ChromemIndex) Reset(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.db.DeleteCollection(i.name); err != nil {
		return fmt.Errorf("delete collection %s: %w", i.name, err)
	}
	return i.create()
}
