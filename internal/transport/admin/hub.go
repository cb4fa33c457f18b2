package admin

import (
	"sync"
	"sync/atomic"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

// Hub fans persistence events out to websocket subscribers. A subscriber that
// falls behind loses events rather than stalling the world.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan world.Event

	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: map[uint64]chan world.Event{}}
}

func (h *Hub) Emit(ev world.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Subscribe(buf int) (uint64, <-chan world.Event) {
	if buf <= 0 {
		buf = 64
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan world.Event, buf)
	h.subs[h.nextID] = ch
	return h.nextID, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
