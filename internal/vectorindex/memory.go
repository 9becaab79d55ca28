package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloo-solutions/docqa/internal/domain"
)

type memoryCollection struct {
	dimension int
	records   []domain.IndexedRecord
}

// MemoryIndex is an in-process brute-force index. Contents do not survive a restart.
type MemoryIndex struct {
	mu          sync.RWMutex
	collection  string
	collections map[string]*memoryCollection
}

func NewMemoryIndex(collection string) *MemoryIndex {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MemoryIndex{
		collection:  collection,
		collections: make(map[string]*memoryCollection),
	}
}

func (m *MemoryIndex) Collection() string { return m.collection }

func (m *MemoryIndex) EnsureCollection(_ context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		if c.dimension != dimension {
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrDimensionMismatch.Message,
				fmt.Errorf("collection %s has dimension %d, requested %d", name, c.dimension, dimension))
		}
		return nil
	}
	m.collections[name] = &memoryCollection{dimension: dimension}
	return nil
}

func (m *MemoryIndex) Insert(_ context.Context, records []domain.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[m.collection]
	if !ok {
		return domain.IndexUnavailable("insert", fmt.Errorf("collection %s does not exist", m.collection))
	}
	if err := validateRecords(records, c.dimension); err != nil {
		return err
	}
	for _, r := range records {
		r.Embedding = append([]float32(nil), r.Embedding...)
		c.records = append(c.records, r)
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		return []domain.SearchHit{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[m.collection]
	if !ok || len(c.records) == 0 {
		return []domain.SearchHit{}, nil
	}

	hits := make([]domain.SearchHit, len(c.records))
	for i, r := range c.records {
		hits[i] = domain.SearchHit{
			ID:       r.ID,
			SourceID: r.SourceID,
			Text:     r.Text,
			Score:    dot(r.Embedding, vector),
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryIndex) ScanAll(_ context.Context, limit int) []domain.IndexedRecord {
	if limit <= 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[m.collection]
	if !ok {
		return nil
	}

	n := min(limit, len(c.records))
	out := make([]domain.IndexedRecord, n)
	for i := 0; i < n; i++ {
		r := c.records[i]
		out[i] = domain.IndexedRecord{ID: r.ID, SourceID: r.SourceID, Text: r.Text}
	}
	return out
}

func (m *MemoryIndex) DeleteBySource(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[m.collection]
	if !ok {
		return nil
	}
	kept := c.records[:0]
	for _, r := range c.records {
		if r.SourceID != sourceID {
			kept = append(kept, r)
		}
	}
	c.records = kept
	return nil
}

func (m *MemoryIndex) ReplaceSource(_ context.Context, sourceID string, records []domain.IndexedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[m.collection]
	if !ok {
		return domain.IndexUnavailable("replace", fmt.Errorf("collection %s does not exist", m.collection))
	}
	if err := validateRecords(records, c.dimension); err != nil {
		return err
	}

	kept := make([]domain.IndexedRecord, 0, len(c.records)+len(records))
	for _, r := range c.records {
		if r.SourceID != sourceID {
			kept = append(kept, r)
		}
	}
	for _, r := range records {
		r.Embedding = append([]float32(nil), r.Embedding...)
		kept = append(kept, r)
	}
	c.records = kept
	return nil
}

func (m *MemoryIndex) DropCollection(_ context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections, name)
	return nil
}

func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[m.collection]
	if !ok {
		return 0, nil
	}
	return len(c.records), nil
}

func dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
