package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// startHubServer runs a test websocket endpoint wired to h, mirroring the
// API layer's upgrade handler.
func startHubServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Add(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		h.Remove(conn)
		conn.Close()
	}))
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHub_DeliversToClient(t *testing.T) {
	b := NewBroadcaster()
	h := NewHub(b)

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)

	srv := startHubServer(t, h)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	waitFor(t, func() bool { return h.ConnectionCount() == 1 }, "client registration")

	b.Broadcast(Message{
		EventType: "alert.status",
		Payload:   map[string]any{"alertId": "a1", "status": "APPROVED"},
	})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := client.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.EventType != "alert.status" {
		t.Errorf("expected event type alert.status, got %s", msg.EventType)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("expected object payload, got %T", msg.Payload)
	}
	if payload["alertId"] != "a1" {
		t.Errorf("expected alertId a1, got %v", payload["alertId"])
	}

	client.Close()
	waitFor(t, func() bool { return h.ConnectionCount() == 0 }, "client removal")

	cancel()
	b.Close()
	h.Stop()
	srv.Close()
}

func TestHub_DropsBrokenClient(t *testing.T) {
	b := NewBroadcaster()
	h := NewHub(b)

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)

	srv := startHubServer(t, h)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	waitFor(t, func() bool { return h.ConnectionCount() == 1 }, "client registration")

	// Kill the client without a close handshake, then keep broadcasting.
	// The hub must shed the dead connection instead of blocking.
	client.UnderlyingConn().Close()
	waitFor(t, func() bool {
		b.Broadcast(Message{EventType: "pattern.detected", Payload: map[string]any{}})
		return h.ConnectionCount() == 0
	}, "dead client removal")

	cancel()
	b.Close()
	h.Stop()
	srv.Close()
}

func TestHub_StopClosesClients(t *testing.T) {
	b := NewBroadcaster()
	h := NewHub(b)

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)

	srv := startHubServer(t, h)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	waitFor(t, func() bool { return h.ConnectionCount() == 1 }, "client registration")

	cancel()
	b.Close()
	h.Stop()

	// The client read should now fail because the hub closed the socket.
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Error("expected read to fail after hub stop")
	}

	client.Close()
	srv.Close()
}
