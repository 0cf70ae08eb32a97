package vectorstore

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/kailas-cloud/millarag/internal/domain"
	"github.com/kailas-cloud/millarag/internal/domain/filter"
)

var _ domain.VectorStore = (*Memory)(nil)

// Memory is a brute-force cosine store kept in process memory.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]domain.VectorEntry
	order      []string // insertion order, keeps equal scores stable
	dimensions int
}

// NewMemory creates an empty store. dimensions = 0 accepts any length.
func NewMemory(dimensions int) *Memory {
	return &Memory{
		entries:    make(map[string]domain.VectorEntry),
		dimensions: dimensions,
	}
}

// Initialize does nothing; the store is ready on construction.
func (m *Memory) Initialize(context.Context) error { return nil }

// Upsert inserts or replaces entries by id.
func (m *Memory) Upsert(_ context.Context, entries []domain.VectorEntry) error {
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry id is required: %w", domain.ErrInvalidInput)
		}
		if m.dimensions > 0 && len(e.Vector) != m.dimensions {
			return fmt.Errorf("entry %s has %d dimensions, want %d: %w",
				e.ID, len(e.Vector), m.dimensions, domain.ErrVectorDimMismatch)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if _, exists := m.entries[e.ID]; !exists {
			m.order = append(m.order, e.ID)
		}
		e.Metadata = maps.Clone(e.Metadata)
		m.entries[e.ID] = e
	}
	return nil
}

// Query scores every entry that passes the filter and returns the best TopK.
func (m *Memory) Query(_ context.Context, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	if q.TopK <= 0 {
		return nil, nil
	}
	expr, err := filter.FromMap(q.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w: %w", err, domain.ErrInvalidInput)
	}

	m.mu.RLock()
	matches := make([]domain.VectorMatch, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		if !expr.Matches(e.Metadata) {
			continue
		}
		match := domain.VectorMatch{
			ID:      e.ID,
			Score:   Cosine(q.Vector, e.Vector),
			Content: e.Content,
		}
		if q.IncludeMetadata {
			match.Metadata = maps.Clone(e.Metadata)
		}
		matches = append(matches, match)
	}
	m.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches, nil
}

// Delete removes entries by id.
func (m *Memory) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := m.entries[id]; ok {
			drop[id] = struct{}{}
			delete(m.entries, id)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	m.order = kept
	return nil
}

// Stats reports the entry count and configured dimensions.
func (m *Memory) Stats(context.Context) (domain.VectorStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.VectorStats{Count: len(m.entries), Dimensions: m.dimensions}, nil
}

// DocumentChunks lists ids whose documentId metadata equals documentID.
func (m *Memory) DocumentChunks(_ context.Context, documentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, id := range m.order {
		if v, _ := m.entries[id].Metadata[domain.MetaDocumentID].(string); v == documentID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Available is always true.
func (m *Memory) Available() bool { return true }

// Cosine returns the cosine similarity of a and b, or 0 when lengths differ or a vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
