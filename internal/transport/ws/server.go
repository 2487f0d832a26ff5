package ws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/monument-sim/monument/internal/namespace"
)

// Server upgrades GET /sim/{ns}/ws/live connections and relays that
// namespace's Hub to each one, the same upgrader-plus-writer-goroutine
// shape as the teacher's internal/transport/ws.Server.Handler.
type Server struct {
	reg *namespace.Registry
	log *log.Logger

	upgrader websocket.Upgrader

	mu   sync.Mutex
	hubs map[string]*Hub
}

func NewServer(reg *namespace.Registry, logger *log.Logger) *Server {
	return &Server{
		reg: reg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hubs: map[string]*Hub{},
	}
}

func (s *Server) hubFor(h *namespace.Handle) *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hub, ok := s.hubs[h.Namespace]; ok {
		return hub
	}
	hub := NewHub(h.Engine)
	s.hubs[h.Namespace] = hub
	return hub
}

// Handler serves a GET /sim/{ns}/ws/live request on its own. It only
// serves namespaces already opened by an earlier HTTP call — it never
// bootstraps one. The HTTP server's route for that path does not use
// Handler: it resolves (and may bootstrap) the namespace, then calls Serve.
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	h, ok := s.reg.Get(ns)
	if !ok {
		http.Error(w, "namespace not open", http.StatusNotFound)
		return
	}
	s.Serve(w, r, h)
}

// Serve upgrades and relays for an already-resolved namespace handle, for
// callers (like the HTTP Server) that resolve/bootstrap the namespace
// themselves before delegating to the WS layer.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, h *namespace.Handle) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	hub := s.hubFor(h)
	clientID := uuid.NewString()
	out := hub.Subscribe(clientID)
	defer hub.Unsubscribe(clientID)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case b, ok := <-out:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "hub closed"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
