package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory catalog store for demo/development mode.
type MemoryStore struct {
	categories map[int64]*Category
	products   map[string]*Product
	nextID     int64
	mu         sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories: make(map[int64]*Category),
		products:   make(map[string]*Product),
		nextID:     1,
	}
}

// AddCategory seeds a category and returns its assigned ID.
func (m *MemoryStore) AddCategory(c Category) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.nextID
	}
	if c.ID >= m.nextID {
		m.nextID = c.ID + 1
	}
	m.categories[c.ID] = &c
	return c.ID
}

// AddProduct seeds a product.
func (m *MemoryStore) AddProduct(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.SKU] = &p
}

func (m *MemoryStore) GetCategory(_ context.Context, id int64) (*Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListCategories(_ context.Context, lang string) ([]*Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Category
	for _, c := range m.categories {
		if lang == "" || c.Lang == lang {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MemoryStore) GetProduct(_ context.Context, sku string) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[sku]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListProducts(_ context.Context, lang string) ([]*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Product
	for _, p := range m.products {
		if lang == "" || p.Lang == lang {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SKU < result[j].SKU })
	return result, nil
}
