package counter

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Hub fans counter updates out to any number of listeners (the admin SSE stream).
//
// Pushes may arrive late, twice, or out of order. Pushed values only move the
// displayed value forward; a resync from the store (on every subscribe and on a
// fixed interval) is authoritative and may move it anywhere.
type Hub struct {
	store          *Store
	resyncInterval time.Duration

	mu        sync.Mutex
	listeners map[chan int64]struct{}
	last      int64
	known     bool
}

// NewHub creates a hub reading from store.
func NewHub(store *Store, resyncInterval time.Duration) *Hub {
	if resyncInterval <= 0 {
		resyncInterval = 30 * time.Second
	}
	return &Hub{
		store:          store,
		resyncInterval: resyncInterval,
		listeners:      make(map[chan int64]struct{}),
	}
}

// Run subscribes to the counter channel and forwards updates until ctx ends.
// A dropped subscription is re-established after a short pause.
func (h *Hub) Run(ctx context.Context) {
	for {
		if err := h.runOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("counter subscription lost; retrying", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (h *Hub) runOnce(ctx context.Context) error {
	pubsub := h.store.rdb.Subscribe(ctx, h.store.key)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if err := h.Resync(ctx); err != nil {
		return err
	}

	msgs := pubsub.Channel()
	ticker := time.NewTicker(h.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := h.Resync(ctx); err != nil {
				slog.Warn("counter resync failed", "error", err)
			}
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			v, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				slog.Warn("ignoring malformed counter push", "payload", msg.Payload)
				continue
			}
			h.Push(v)
		}
	}
}

// Resync reads the authoritative value from the store and broadcasts it if it changed.
func (h *Hub) Resync(ctx context.Context) error {
	v, err := h.store.Get(ctx)
	if err != nil {
		return err
	}
	h.apply(v, true)
	return nil
}

// Push applies a pushed value. Values at or below the current one are dropped.
func (h *Hub) Push(v int64) {
	h.apply(v, false)
}

func (h *Hub) apply(v int64, authoritative bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.known && (v == h.last || (!authoritative && v < h.last)) {
		return
	}
	h.last, h.known = v, true
	for ch := range h.listeners {
		offerLatest(ch, v)
	}
}

// offerLatest replaces any undelivered value in a one-slot channel with v.
func offerLatest(ch chan int64, v int64) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Current returns the last known value.
func (h *Hub) Current() (int64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.known
}

// Subscribe registers a listener. The channel holds at most the latest value and
// receives the current one immediately when known. Call cancel to unregister.
func (h *Hub) Subscribe() (<-chan int64, func()) {
	ch := make(chan int64, 1)

	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	if h.known {
		ch <- h.last
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, ch)
			h.mu.Unlock()
		})
	}
}

// Listeners returns the number of registered listeners.
func (h *Hub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
