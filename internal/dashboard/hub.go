package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Hub bridges the in-process broadcaster to connected dashboard websocket
// clients. All clients share the one dashboard group. Delivery is
// best-effort: a client whose write fails or times out is dropped so a
// slow observer can never block publishers.
type Hub struct {
	broadcaster *Broadcaster
	conns       map[*websocket.Conn]bool
	mu          sync.Mutex
	wg          sync.WaitGroup
}

func NewHub(b *Broadcaster) *Hub {
	return &Hub{
		broadcaster: b,
		conns:       make(map[*websocket.Conn]bool),
	}
}

// Start subscribes the hub to the broadcaster and forwards messages until
// the context is cancelled or the broadcaster closes.
func (h *Hub) Start(ctx context.Context) {
	id, ch := h.broadcaster.Subscribe()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.broadcaster.Unsubscribe(id)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h.send(msg)
			}
		}
	}()
}

// Stop waits for the forwarder to exit and closes remaining client
// connections.
func (h *Hub) Stop() {
	h.wg.Wait()

	h.mu.Lock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
	h.mu.Unlock()
	slog.Info("dashboard hub stopped")
}

func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()
	slog.Info("dashboard client connected", "clients", h.ConnectionCount())
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) send(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			slog.Debug("dropping dashboard client", "error", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}
