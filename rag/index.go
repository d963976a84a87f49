package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Hit is a search result: the position of a vector in insertion order and
// its Euclidean distance to the query.
type Hit struct {
	ID       int
	Distance float32
}

// Index is a vector index with sequential ids starting at zero.
type Index interface {
	Add(ctx context.Context, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Len() int
	Close() error
}

// IndexFactory creates an empty index for vectors of the given width.
type IndexFactory func(dims int) (Index, error)

// NewFlatIndexFactory returns a factory for FlatIndex.
func NewFlatIndexFactory() IndexFactory {
	return func(dims int) (Index, error) { return NewFlatIndex(dims), nil }
}

// FlatIndex is an exact in-memory index that scans every vector.
type FlatIndex struct {
	dims    int
	mu      sync.RWMutex
	vectors [][]float32
}

// NewFlatIndex creates a FlatIndex for vectors of width dims.
func NewFlatIndex(dims int) *FlatIndex {
	return &FlatIndex{dims: dims}
}

// Add implements Index.
func (f *FlatIndex) Add(_ context.Context, vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dims {
			return fmt.Errorf("rag: vector %d has %d dimensions, index expects %d", i, len(v), f.dims)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		f.vectors = append(f.vectors, append([]float32(nil), v...))
	}
	return nil
}

// Search implements Index.
func (f *FlatIndex) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dims {
		return nil, fmt.Errorf("rag: query has %d dimensions, index expects %d", len(query), f.dims)
	}
	f.mu.RLock()
	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{ID: i, Distance: l2(query, v)}
	}
	f.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k < len(hits) {
		hits = hits[:max(k, 0)]
	}
	return hits, nil
}

// Len implements Index.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Close implements Index.
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	f.vectors = nil
	f.mu.Unlock()
	return nil
}

func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
