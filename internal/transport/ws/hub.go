// Package ws streams the engine's live tick events over WebSocket (spec
// §6: "WS /sim/{ns}/ws/live streams discrete events ... Events are
// fire-and-forget; dropped clients are closed"). It generalizes the
// teacher's per-connection channel + writer-goroutine idiom
// (internal/transport/ws, internal/transport/observer) to a one-to-many
// fan-out, since here many viewers can watch one namespace's single
// event stream at once.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/monument-sim/monument/internal/engine"
)

// Hub fans one Engine's event stream out to every subscribed connection.
// One Hub per namespace, created lazily and kept alive for the process
// lifetime (mirrors namespace.Registry's one-handle-per-namespace shape).
type Hub struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

// NewHub starts the pump goroutine draining eng.Events() until it closes.
func NewHub(eng *engine.Engine) *Hub {
	h := &Hub{subs: map[string]chan []byte{}}
	go h.pump(eng)
	return h
}

func (h *Hub) pump(eng *engine.Engine) {
	for ev := range eng.Events() {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		h.broadcast(b)
	}
	h.closeAll()
}

func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- b:
		default:
			// Dropped client: slow consumer closes per spec §6 rather
			// than letting one viewer back-pressure the whole hub.
			close(ch)
			delete(h.subs, id)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Subscribe registers a new connection and returns its outbound queue.
// Call Unsubscribe with the same clientID to release the queue.
func (h *Hub) Subscribe(clientID string) <-chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan []byte, 32)
	h.subs[clientID] = ch
	return ch
}

func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[clientID]; ok {
		close(ch)
		delete(h.subs, clientID)
	}
}
