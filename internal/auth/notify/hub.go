// Package notify fans approval events out to live push-login listeners.
package notify

import (
	"sync"

	"github.com/sydsec/gatehouse/internal/auth/domain"
)

// Hub tracks at most one live listener per key (the push-login request id).
// A newer listener for the same key replaces the older one, which observes
// its channel closing.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]chan domain.PushEvent
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]chan domain.PushEvent)}
}

// Subscribe registers a listener for a key and returns its event channel.
// Any previous listener for the key is closed out.
func (h *Hub) Subscribe(key string) <-chan domain.PushEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.listeners[key]; ok {
		close(old)
	}

	// Buffered so Publish never blocks on a listener that is mid-write.
	ch := make(chan domain.PushEvent, 1)
	h.listeners[key] = ch
	return ch
}

// Unsubscribe drops the listener identified by its channel. Safe to call
// after the listener has been replaced; only the matching channel is removed.
func (h *Hub) Unsubscribe(key string, ch <-chan domain.PushEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.listeners[key]
	if !ok || (<-chan domain.PushEvent)(current) != ch {
		return
	}
	delete(h.listeners, key)
	close(current)
}

// Publish delivers an event to the key's listener, if any. Delivery is best
// effort: no listener, or a listener with a full buffer, drops the event
// rather than blocking the verifier.
func (h *Hub) Publish(key string, ev domain.PushEvent) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.listeners[key]
	if !ok {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

// Len reports the number of live listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
