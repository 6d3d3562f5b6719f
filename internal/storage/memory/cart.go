package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/kart-catalog/internal/domain/cart"
	"github.com/xenking/kart-catalog/internal/domain/product"
	"github.com/xenking/kart-catalog/pkg/notify"
)

var _ cart.Store = (*CartStore)(nil)

// CartStore keeps cart lines in a map keyed by product ID. The increment
// read-modify-write happens under the write lock, so concurrent adds of the
// same product never produce two lines.
type CartStore struct {
	mu    sync.RWMutex
	lines map[int64]cart.Line
	seq   map[int64]uint64
	next  uint64
	hub   *notify.Hub
	now   func() time.Time
}

// NewCartStore returns an empty CartStore.
func NewCartStore() *CartStore {
	return &CartStore{
		lines: make(map[int64]cart.Line),
		seq:   make(map[int64]uint64),
		hub:   notify.NewHub(),
		now:   time.Now,
	}
}

// Lines returns all lines in insertion order.
func (s *CartStore) Lines(_ context.Context) ([]cart.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.lines))
	for id := range s.lines {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b int64) int {
		switch {
		case s.seq[a] < s.seq[b]:
			return -1
		case s.seq[a] > s.seq[b]:
			return 1
		}
		return 0
	})

	lines := make([]cart.Line, len(ids))
	for i, id := range ids {
		lines[i] = s.lines[id]
	}
	return lines, nil
}

// Increment creates the line for p or adds one unit to it.
func (s *CartStore) Increment(_ context.Context, p product.Product) (cart.Line, error) {
	s.mu.Lock()
	line, ok := s.lines[p.ID]
	if !ok {
		line = cart.Line{ProductID: p.ID, AddedAt: s.now()}
		s.seq[p.ID] = s.next
		s.next++
	}
	line.Quantity++
	line.Snapshot = p
	s.lines[p.ID] = line
	s.mu.Unlock()

	s.hub.Publish()
	return line, nil
}

// SetQuantity updates an existing line.
func (s *CartStore) SetQuantity(_ context.Context, productID int64, quantity int) (bool, error) {
	s.mu.Lock()
	line, ok := s.lines[productID]
	if ok {
		line.Quantity = quantity
		s.lines[productID] = line
	}
	s.mu.Unlock()

	if ok {
		s.hub.Publish()
	}
	return ok, nil
}

// Remove deletes the line for productID.
func (s *CartStore) Remove(_ context.Context, productID int64) error {
	s.mu.Lock()
	_, ok := s.lines[productID]
	delete(s.lines, productID)
	delete(s.seq, productID)
	s.mu.Unlock()

	if ok {
		s.hub.Publish()
	}
	return nil
}

// Clear deletes every line.
func (s *CartStore) Clear(_ context.Context) error {
	s.mu.Lock()
	clear(s.lines)
	clear(s.seq)
	s.mu.Unlock()

	s.hub.Publish()
	return nil
}

// Subscribe returns a channel signalled after each committed write.
func (s *CartStore) Subscribe(ctx context.Context) <-chan struct{} {
	return s.hub.Subscribe(ctx)
}
