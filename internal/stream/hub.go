package stream

import "sync"

// Hub fans engine update notifications out to subscribers (SSE handlers,
// tests). The engine itself never knows who is listening.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[chan []byte]struct{}{}}
}

// Subscribe registers a listener channel. The caller must Unsubscribe when
// done to release it.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// Broadcast sends a notification to all subscribers. The select/default
// pattern is a non-blocking send: a slow consumer with a full buffer
// misses the intermediate update rather than blocking the router. Each
// channel has capacity 1, so the subscriber still observes the most
// recent notification on its next read.
func (h *Hub) Broadcast(data []byte) {
	if data == nil {
		return
	}
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
		}
	}
	h.mu.Unlock()
}
