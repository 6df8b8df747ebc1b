package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serveHub upgrades connections into hub clients.
func serveHub(t *testing.T, hub *Hub, initial []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		if initial != nil {
			client.Enqueue(initial)
		}
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(msg)
}

func TestClient_InitialSnapshotThenBroadcast(t *testing.T) {
	hub := startHub(t)
	srv := serveHub(t, hub, []byte(`{"type":"session"}`))
	conn := dial(t, srv)

	if got := readFrame(t, conn); got != `{"type":"session"}` {
		t.Errorf("initial frame = %s", got)
	}

	// The write pump starts only after registration, so the hub now knows the client.
	hub.Broadcast([]byte("state-changed"))

	if got := readFrame(t, conn); got != "state-changed" {
		t.Errorf("broadcast frame = %s", got)
	}
}

func TestClient_HubShutdownClosesConnection(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := serveHub(t, hub, []byte("hi"))
	conn := dial(t, srv)
	readFrame(t, conn)

	cancel()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after hub shutdown")
	}
}

func TestClient_EnqueueFullBuffer(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}

	if !c.Enqueue([]byte("a")) {
		t.Error("first enqueue should succeed")
	}
	if c.Enqueue([]byte("b")) {
		t.Error("enqueue on a full buffer should fail")
	}
}

func TestNewClient_AssignsID(t *testing.T) {
	a := NewClient(NewHub(), nil)
	b := NewClient(NewHub(), nil)

	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("expected unique ids, got %q and %q", a.ID(), b.ID())
	}
}
