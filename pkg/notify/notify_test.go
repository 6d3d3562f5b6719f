package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestPublish_ReachesAllSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	a := h.Subscribe(ctx)
	b := h.Subscribe(ctx)

	h.Publish()

	receive(t, a)
	receive(t, b)
}

func TestPublish_CoalescesPendingSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	ch := h.Subscribe(ctx)

	for range 10 {
		h.Publish()
	}

	receive(t, ch)
	select {
	case <-ch:
		t.Fatal("expected a single coalesced signal")
	default:
	}
}

func TestSubscribe_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := NewHub()
	ch := h.Subscribe(ctx)
	require.Equal(t, 1, h.Len())

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
	assert.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, 10*time.Millisecond)

	// Publishing after unsubscribe must not panic.
	h.Publish()
}
