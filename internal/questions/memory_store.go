package questions

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory question store for demo/development mode.
type MemoryStore struct {
	questions map[int64]*Question
	nextID    int64
	mu        sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory question store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions: make(map[int64]*Question),
		nextID:    1,
	}
}

// Add seeds a question and returns its assigned ID.
func (m *MemoryStore) Add(q Question) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == 0 {
		q.ID = m.nextID
	}
	if q.ID >= m.nextID {
		m.nextID = q.ID + 1
	}
	m.questions[q.ID] = &q
	return q.ID
}

func (m *MemoryStore) ListByCategory(_ context.Context, categoryID int64) ([]*Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Question
	for _, q := range m.questions {
		if q.CategoryID == categoryID {
			cp := *q
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
