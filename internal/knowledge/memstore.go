package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process brute-force vector store for local/dev use
// and tests. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]memEntry
}

type memEntry struct {
	record Record
	vector []float32
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. dims <= 0 adopts the width of the
// first upserted vector.
func NewMemoryStore(dims int) *MemoryStore {
	return &MemoryStore{dims: dims, entries: make(map[string]memEntry)}
}

func (s *MemoryStore) Upsert(_ context.Context, records []Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("upsert: %d records but %d vectors", len(records), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dims
	if dims <= 0 && len(vectors) > 0 {
		dims = len(vectors[0])
	}
	for i, r := range records {
		if len(vectors[i]) != dims {
			return fmt.Errorf("%w: record %s has %d, store expects %d", ErrDimensionMismatch, r.ID, len(vectors[i]), dims)
		}
	}
	s.dims = dims
	for i, r := range records {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		s.entries[r.ID] = memEntry{record: copyRecord(r), vector: vec}
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, vector []float32, k int) ([]RetrievedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 || k <= 0 {
		return []RetrievedDocument{}, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query has %d, store expects %d", ErrDimensionMismatch, len(vector), s.dims)
	}

	hits := make([]RetrievedDocument, 0, len(s.entries))
	for _, e := range s.entries {
		r := copyRecord(e.record)
		hits = append(hits, RetrievedDocument{
			ID:       r.ID,
			Text:     r.Text,
			Metadata: r.Metadata,
			Distance: CosineDistance(vector, e.vector),
		})
	}
	SortByDistance(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Categories(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, e := range s.entries {
		if c, ok := e.record.Metadata[CategoryField].(string); ok && c != "" {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func copyRecord(r Record) Record {
	meta := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	r.Metadata = meta
	return r
}
