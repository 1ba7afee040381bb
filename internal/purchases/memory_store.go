package purchases

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory purchase store for demo/development mode.
// The map keyed by transaction key stands in for the database uniqueness
// constraint: inserts under the mutex make duplicate detection atomic.
type MemoryStore struct {
	byKey map[string]*Purchase
	mu    sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory purchase store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[string]*Purchase),
	}
}

func (m *MemoryStore) Create(_ context.Context, p *Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[p.TransactionKey]; ok {
		return ErrDuplicate
	}
	cp := *p
	m.byKey[p.TransactionKey] = &cp
	return nil
}

func (m *MemoryStore) GetByTransactionKey(_ context.Context, key string) (*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ExistsForUser(_ context.Context, userID int64, sku string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.byKey {
		if p.UserID == userID && p.ProductSKU == sku {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID int64) ([]*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Purchase
	for _, p := range m.byKey {
		if p.UserID == userID {
			cp := *p
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}
