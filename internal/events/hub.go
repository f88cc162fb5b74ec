package events

import (
	"sync"
	"sync/atomic"

	"github.com/MrSnakeDoc/wagate/internal/domain"
)

// DefaultBuffer is the per-subscriber channel size
const DefaultBuffer = 64

// Hub fans lifecycle events out to subscribers. Notify never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan domain.Event
	nextID  uint64
	dropped atomic.Uint64
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan domain.Event)}
}

// Notify implements lifecycle.Notifier
func (h *Hub) Notify(ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func closes
// the channel and must be called exactly once.
func (h *Hub) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan domain.Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber lagged
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
