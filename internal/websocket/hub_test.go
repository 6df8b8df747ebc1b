package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"payment-console/internal/domain"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = hub.Run(ctx)
	}()
	t.Cleanup(cancel)
	return hub
}

func newTestClient(hub *Hub) *Client {
	return &Client{hub: hub, send: make(chan []byte, 16), id: "test-client"}
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return nil
}

func TestHub_NewHub(t *testing.T) {
	hub := NewHub()

	if hub.clients == nil || hub.broadcast == nil || hub.register == nil || hub.unregister == nil || hub.done == nil {
		t.Fatal("NewHub() left fields uninitialized")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- hub.Run(ctx)
	}()

	cancel()

	select {
	case err := <-errChan:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Hub did not stop after context cancellation")
	}

	// Calls after shutdown must not block.
	done := make(chan struct{})
	go func() {
		hub.Broadcast([]byte("late"))
		hub.Register(newTestClient(hub))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub calls blocked after shutdown")
	}
}

func TestHub_BroadcastToAllClients(t *testing.T) {
	hub := startHub(t)
	c1 := newTestClient(hub)
	c2 := newTestClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast([]byte("hello"))

	if got := string(receive(t, c1)); got != "hello" {
		t.Errorf("client1 got %q", got)
	}
	if got := string(receive(t, c2)); got != "hello" {
		t.Errorf("client2 got %q", got)
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	hub.Register(c)
	hub.Unregister(c)
	// Double unregister is harmless.
	hub.Unregister(c)

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected send channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := startHub(t)
	// A full buffer stands in for a client that stopped reading.
	slow := &Client{hub: hub, send: make(chan []byte, 1), id: "slow"}
	slow.send <- []byte("stale")
	fast := newTestClient(hub)
	hub.Register(slow)
	hub.Register(fast)

	hub.Broadcast([]byte("x"))

	// Both clients are handled in the same pass over the broadcast.
	if got := string(receive(t, fast)); got != "x" {
		t.Fatalf("fast client got %q, want %q", got, "x")
	}
	if got := string(<-slow.send); got != "stale" {
		t.Fatalf("slow client got %q, want only the buffered frame", got)
	}
	select {
	case _, ok := <-slow.send:
		if ok {
			t.Error("slow client should have been dropped, not served")
		}
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
}

func TestHub_PublishAndToast(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	hub.Register(c)

	hub.Publish(EventSession, map[string]bool{"isAuthenticated": true})
	hub.Toast(domain.Toast{Message: "Logged out successfully", Severity: domain.SeveritySuccess, Duration: 4 * time.Second})

	var ev struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(receive(t, c), &ev); err != nil {
		t.Fatalf("decode session event: %v", err)
	}
	if ev.Type != EventSession {
		t.Errorf("type = %q, want %q", ev.Type, EventSession)
	}

	var toast struct {
		Type string    `json:"type"`
		Data toastData `json:"data"`
	}
	if err := json.Unmarshal(receive(t, c), &toast); err != nil {
		t.Fatalf("decode toast event: %v", err)
	}
	if toast.Type != EventToast || toast.Data.DurationMs != 4000 || toast.Data.Message != "Logged out successfully" {
		t.Errorf("unexpected toast event %+v", toast)
	}
}

func TestHub_PublishUnencodable(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	hub.Register(c)

	hub.Publish(EventSession, func() {})

	select {
	case msg := <-c.send:
		t.Errorf("unexpected frame %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
