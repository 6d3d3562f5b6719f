// Package notify implements push-based change notification for local tables.
//
// A Hub hands every subscriber a one-slot channel. Publish performs a
// non-blocking send on each slot, so a slow subscriber coalesces bursts of
// writes into a single wake-up and re-reads the latest state. Publishers never
// block on subscribers.
package notify

import (
	"context"
	"sync"
)

// Hub fans change signals out to subscribers.
type Hub struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]chan struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan struct{})}
}

// Subscribe registers a subscriber that lives until ctx is done. The returned
// channel receives a signal after every Publish and is closed on unsubscribe.
func (h *Hub) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish signals every current subscriber.
func (h *Hub) Publish() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending.
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
