// Package memory provides process-local implementations of the product and
// cart stores. They back the "memory" storage driver and the unit tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/xenking/kart-catalog/internal/domain/product"
)

var _ product.Store = (*ProductStore)(nil)

// ProductStore keeps products in a map keyed by ID.
type ProductStore struct {
	mu       sync.RWMutex
	products map[int64]product.Product
	maxID    int64
}

// NewProductStore returns an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{products: make(map[int64]product.Product)}
}

// List returns all products ordered by name, then ID.
func (s *ProductStore) List(_ context.Context) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		list = append(list, p)
	}
	slices.SortFunc(list, func(a, b product.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return list, nil
}

// GetByID returns product.ErrNotFound when id is not stored.
func (s *ProductStore) GetByID(_ context.Context, id int64) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the stored products among ids; missing IDs are skipped.
func (s *ProductStore) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			list = append(list, p)
		}
	}
	sortByID(list)
	return list, nil
}

// Count returns the number of stored products.
func (s *ProductStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

// Insert stores p, assigning the next free ID when p.ID is zero.
func (s *ProductStore) Insert(_ context.Context, p product.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		p.ID = s.maxID + 1
	}
	s.put(p)
	return p.ID, nil
}

// InsertMany stores every product, replacing rows with the same ID.
func (s *ProductStore) InsertMany(_ context.Context, products []product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		if p.ID == 0 {
			p.ID = s.maxID + 1
		}
		s.put(p)
	}
	return nil
}

// Upsert stores p under p.ID.
func (s *ProductStore) Upsert(_ context.Context, p product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(p)
	return nil
}

// Delete removes id. Missing IDs are ignored.
func (s *ProductStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.products, id)
	return nil
}

// DeleteAll empties the store.
func (s *ProductStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.products)
	return nil
}

// ReplaceAll swaps the whole table for products.
func (s *ProductStore) ReplaceAll(_ context.Context, products []product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.products)
	for _, p := range products {
		s.put(p)
	}
	return nil
}

// put must be called with mu held.
func (s *ProductStore) put(p product.Product) {
	s.products[p.ID] = p.Normalize()
	if p.ID > s.maxID {
		s.maxID = p.ID
	}
}

func sortByID(list []product.Product) {
	slices.SortFunc(list, func(a, b product.Product) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
