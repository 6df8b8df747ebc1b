package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"payment-console/internal/domain"
	"payment-console/internal/testutil"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenFunc func(ctx context.Context) (string, error)

func (f tokenFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

func staticToken(token string) TokenSource {
	return tokenFunc(func(context.Context) (string, error) { return token, nil })
}

// wsServer is a notification endpoint that records each connection.
type wsServer struct {
	srv *httptest.Server

	mu     sync.Mutex
	conns  []*websocket.Conn
	tokens []string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.tokens = append(s.tokens, r.URL.Query().Get("token"))
		s.mu.Unlock()
	}))
	t.Cleanup(func() {
		s.mu.Lock()
		for _, c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		s.srv.Close()
	})
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/notifications"
}

func (s *wsServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *wsServer) conn(i int) *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[i]
}

func (s *wsServer) token(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[i]
}

func (s *wsServer) sendRaw(t *testing.T, i int, frame string) {
	t.Helper()
	require.NoError(t, s.conn(i).WriteMessage(websocket.TextMessage, []byte(frame)))
}

func newTestChannel(t *testing.T, rawURL string, tokens TokenSource, sink Sink, delay time.Duration) *Channel {
	t.Helper()
	ch, err := NewChannel(ChannelConfig{URL: rawURL, ReconnectDelay: delay}, tokens, sink)
	require.NoError(t, err)
	t.Cleanup(ch.Disconnect)
	return ch
}

func TestChannel_DeliversPaymentCompleted(t *testing.T) {
	srv := newWSServer(t)
	store := NewStore(nil, nil)
	ch := newTestChannel(t, srv.url(), staticToken("AT1"), store, time.Second)

	require.NoError(t, ch.Connect(context.Background()))
	testutil.WaitFor(t, time.Second, func() bool { return srv.count() == 1 }, "server accepted connection")

	assert.Equal(t, "AT1", srv.token(0))
	assert.Equal(t, Status{State: StateConnected, Connected: true}, ch.Status())

	srv.sendRaw(t, 0, `{"type":"PAYMENT_COMPLETED","payload":{"paymentId":"P1","formattedAmount":"$10.00"}}`)
	testutil.WaitFor(t, time.Second, func() bool { return store.UnreadCount() == 1 }, "notification added")

	list := store.List()
	require.Len(t, list, 1)
	assert.Equal(t, domain.SeveritySuccess, list[0].Severity)
	assert.Equal(t, "/payments/P1", list[0].ActionURL)
	assert.Equal(t, "P1", list[0].Metadata["paymentId"])
}

func TestChannel_DropsMalformedAndUnknownMessages(t *testing.T) {
	srv := newWSServer(t)
	store := NewStore(nil, nil)
	ch := newTestChannel(t, srv.url(), staticToken("AT1"), store, time.Second)

	require.NoError(t, ch.Connect(context.Background()))
	testutil.WaitFor(t, time.Second, func() bool { return srv.count() == 1 }, "server accepted connection")

	srv.sendRaw(t, 0, `{not json`)
	srv.sendRaw(t, 0, `{"type":"PAYMENT_DISPUTED","payload":{}}`)
	srv.sendRaw(t, 0, `{"type":"SECURITY_ALERT","payload":{"message":"New device"}}`)

	testutil.WaitFor(t, time.Second, func() bool { return store.UnreadCount() == 1 }, "valid message delivered")
	assert.Equal(t, "New device", store.List()[0].Message)
	assert.True(t, ch.Status().Connected)
}

func TestChannel_ReconnectsOnceAfterClose(t *testing.T) {
	srv := newWSServer(t)
	ch := newTestChannel(t, srv.url(), staticToken("AT1"), NewStore(nil, nil), 50*time.Millisecond)

	require.NoError(t, ch.Connect(context.Background()))
	testutil.WaitFor(t, time.Second, func() bool { return srv.count() == 1 }, "first connection")

	require.NoError(t, srv.conn(0).Close())

	testutil.WaitFor(t, 2*time.Second, func() bool { return srv.count() == 2 }, "reconnect")
	testutil.WaitFor(t, time.Second, func() bool { return ch.Status().Connected }, "connected again")

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, srv.count(), "exactly one reconnect")
}

func TestChannel_DisconnectPreventsReconnect(t *testing.T) {
	srv := newWSServer(t)
	ch := newTestChannel(t, srv.url(), staticToken("AT1"), NewStore(nil, nil), 50*time.Millisecond)

	require.NoError(t, ch.Connect(context.Background()))
	testutil.WaitFor(t, time.Second, func() bool { return srv.count() == 1 }, "first connection")

	ch.Disconnect()
	assert.Equal(t, Status{State: StateDisconnected}, ch.Status())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, srv.count())
	assert.Equal(t, StateDisconnected, ch.Status().State)
}

func TestChannel_DisconnectDuringReconnectTokenRead(t *testing.T) {
	srv := newWSServer(t)

	var reads atomic.Int32
	reading := make(chan struct{})
	release := make(chan struct{})
	tokens := tokenFunc(func(context.Context) (string, error) {
		if reads.Add(1) > 1 {
			close(reading)
			<-release
		}
		return "AT1", nil
	})
	ch := newTestChannel(t, srv.url(), tokens, NewStore(nil, nil), 30*time.Millisecond)

	require.NoError(t, ch.Connect(context.Background()))
	testutil.WaitFor(t, time.Second, func() bool { return srv.count() == 1 }, "first connection")

	require.NoError(t, srv.conn(0).Close())

	select {
	case <-reading:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never read the access token")
	}
	ch.Disconnect()
	close(release)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, srv.count(), "no connection after Disconnect")
	assert.Equal(t, Status{State: StateDisconnected}, ch.Status())
}

func TestChannel_ConnectIsIdempotent(t *testing.T) {
	srv := newWSServer(t)
	ch := newTestChannel(t, srv.url(), staticToken("AT1"), NewStore(nil, nil), time.Second)

	require.NoError(t, ch.Connect(context.Background()))
	require.NoError(t, ch.Connect(context.Background()))
	testutil.WaitFor(t, time.Second, func() bool { return srv.count() >= 1 }, "connection")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.count())
}

type fakeDialer struct {
	dials atomic.Int32
	err   error
}

func (d *fakeDialer) Dial(context.Context, string) (Conn, error) {
	d.dials.Add(1)
	return nil, d.err
}

func TestChannel_NoTokenIsNoop(t *testing.T) {
	dialer := &fakeDialer{}
	ch, err := NewChannel(ChannelConfig{URL: "ws://localhost/ws/notifications", Dialer: dialer}, staticToken(""), NewStore(nil, nil))
	require.NoError(t, err)

	require.NoError(t, ch.Connect(context.Background()))

	assert.Zero(t, dialer.dials.Load())
	assert.Equal(t, Status{State: StateDisconnected}, ch.Status())
}

func TestChannel_TokenReadError(t *testing.T) {
	dialer := &fakeDialer{}
	failing := tokenFunc(func(context.Context) (string, error) { return "", errors.New("store offline") })
	ch, err := NewChannel(ChannelConfig{URL: "ws://localhost/ws/notifications", Dialer: dialer}, failing, NewStore(nil, nil))
	require.NoError(t, err)

	assert.Error(t, ch.Connect(context.Background()))
	assert.Zero(t, dialer.dials.Load())
}

func TestChannel_DialFailureSchedulesReconnect(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	ch, err := NewChannel(ChannelConfig{
		URL:            "ws://localhost/ws/notifications",
		ReconnectDelay: 30 * time.Millisecond,
		Dialer:         dialer,
	}, staticToken("AT1"), NewStore(nil, nil))
	require.NoError(t, err)
	t.Cleanup(ch.Disconnect)

	require.NoError(t, ch.Connect(context.Background()))
	assert.True(t, ch.Status().ReconnectPending)

	testutil.WaitFor(t, time.Second, func() bool { return dialer.dials.Load() >= 2 }, "retry dial")

	ch.Disconnect()
	settled := dialer.dials.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, dialer.dials.Load())
	assert.False(t, ch.Status().ReconnectPending)
}

func TestChannel_StatusSubscription(t *testing.T) {
	srv := newWSServer(t)
	ch := newTestChannel(t, srv.url(), staticToken("AT1"), NewStore(nil, nil), time.Second)

	var mu sync.Mutex
	var states []State
	unsubscribe := ch.Subscribe(func(s Status) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, ch.Connect(context.Background()))
	ch.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, states)
}

func TestNewChannel_InvalidURL(t *testing.T) {
	_, err := NewChannel(ChannelConfig{URL: "http://localhost/ws"}, staticToken("x"), NewStore(nil, nil))
	assert.Error(t, err)

	_, err = NewChannel(ChannelConfig{URL: "://bad"}, staticToken("x"), NewStore(nil, nil))
	assert.Error(t, err)
}

func TestChannel_EndpointEncodesToken(t *testing.T) {
	ch, err := NewChannel(ChannelConfig{URL: "wss://pay.example.com/ws/notifications"}, staticToken("x"), NewStore(nil, nil))
	require.NoError(t, err)

	got, err := ch.endpoint("a+b/c")
	require.NoError(t, err)
	assert.Equal(t, "wss://pay.example.com/ws/notifications?token=a%2Bb%2Fc", got)
}
