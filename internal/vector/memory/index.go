// Package memory is an in-process similarity index for development and
// tests. Vectors are compared by cosine similarity.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/legalrag/backend/internal/domain"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type entry struct {
	text   string
	meta   map[string]string
	vector []float32
}

type Index struct {
	embedder Embedder

	mu          sync.RWMutex
	collections map[string][]entry
}

var _ domain.SimilarityIndex = (*Index)(nil)

func New(embedder Embedder, collections ...string) *Index {
	idx := &Index{embedder: embedder, collections: make(map[string][]entry)}
	for _, c := range collections {
		idx.collections[c] = nil
	}
	return idx
}

func (x *Index) EnsureCollection(_ context.Context, name string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.collections[name]; !ok {
		x.collections[name] = nil
	}
	return nil
}

func (x *Index) ListCollections(context.Context) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	names := make([]string, 0, len(x.collections))
	for name := range x.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (x *Index) Insert(_ context.Context, collection, text string, meta map[string]string, embedding []float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	entries, ok := x.collections[collection]
	if !ok {
		return fmt.Errorf("%w %q", domain.ErrUnknownCollection, collection)
	}
	if len(entries) > 0 && len(entries[0].vector) != len(embedding) {
		return fmt.Errorf("embedding has %d dimensions, collection expects %d", len(embedding), len(entries[0].vector))
	}
	m := make(map[string]string, len(meta))
	for k, v := range meta {
		m[k] = v
	}
	x.collections[collection] = append(entries, entry{text: text, meta: m, vector: embedding})
	return nil
}

func (x *Index) Delete(_ context.Context, collection, field, value string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	entries, ok := x.collections[collection]
	if !ok {
		return fmt.Errorf("%w %q", domain.ErrUnknownCollection, collection)
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.meta[field] != value {
			kept = append(kept, e)
		}
	}
	x.collections[collection] = kept
	return nil
}

func (x *Index) Search(ctx context.Context, collection, query string, k int) ([]domain.Match, error) {
	x.mu.RLock()
	_, ok := x.collections[collection]
	x.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownCollection, collection)
	}

	q, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	entries := x.collections[collection]
	matches := make([]domain.Match, len(entries))
	for i, e := range entries {
		matches[i] = domain.Match{Text: e.text, Metadata: e.meta, Score: cosine(q, e.vector)}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Len reports the number of entries in a collection.
func (x *Index) Len(collection string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.collections[collection])
}

func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
