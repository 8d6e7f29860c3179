package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/mainframe-kb/incident-search/pkg/errors"
)

// Memory is an in-process Store used in tests and by embedders that manage
// records themselves.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

// Put inserts or replaces a record.
func (m *Memory) Put(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
}

// Remove deletes a record by ID.
func (m *Memory) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
}

func (m *Memory) List(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Get(ctx context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, apperrors.ErrRecordNotFound
	}
	return rec, nil
}

func (m *Memory) ScanLexical(ctx context.Context, query string, limit int) ([]Record, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	m.mu.RLock()
	matched := make([]Record, 0)
	for _, rec := range m.records {
		if needle == "" ||
			strings.Contains(strings.ToLower(rec.Title), needle) ||
			strings.Contains(strings.ToLower(rec.Problem), needle) ||
			strings.Contains(strings.ToLower(rec.Solution), needle) {
			matched = append(matched, rec)
		}
	}
	m.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UsageCount != matched[j].UsageCount {
			return matched[i].UsageCount > matched[j].UsageCount
		}
		return matched[i].ID < matched[j].ID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
