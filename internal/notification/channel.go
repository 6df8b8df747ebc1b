package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"payment-console/internal/domain"
	"payment-console/internal/observability"

	"github.com/gorilla/websocket"
)

const (
	DefaultReconnectDelay   = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	maxFrameSize            = 64 * 1024
)

// State of the notification channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var allStates = []State{StateDisconnected, StateConnecting, StateConnected}

// Conn is an open channel connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens channel connections. Tests inject fakes here.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// TokenSource yields the current access token. domain.TokenStore satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Sink receives rendered notifications. *Store satisfies it.
type Sink interface {
	Add(ctx context.Context, in domain.NotificationInput) domain.Notification
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		}
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial channel: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)
	return conn, nil
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	// URL is the ws/wss endpoint without the token query parameter.
	URL            string
	ReconnectDelay time.Duration
	Dialer         Dialer
}

// Status is the channel state as shown to UI layers.
type Status struct {
	State            State `json:"state"`
	Connected        bool  `json:"connected"`
	ReconnectPending bool  `json:"reconnectPending"`
}

// Channel owns at most one live notification connection. Any close other
// than Disconnect schedules exactly one reconnect after the reconnect delay.
type Channel struct {
	url    string
	delay  time.Duration
	dialer Dialer
	tokens TokenSource
	sink   Sink

	mu        sync.Mutex
	state     State
	conn      Conn
	wanted    bool
	attempt   uint64
	reconnect *time.Timer
	baseCtx   context.Context

	subsMu  sync.Mutex
	subs    map[int]func(Status)
	nextSub int
}

// NewChannel creates a disconnected channel.
func NewChannel(cfg ChannelConfig, tokens TokenSource, sink Sink) (*Channel, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid channel URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid channel URL scheme %q", u.Scheme)
	}

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = WebsocketDialer{}
	}

	c := &Channel{
		url:     cfg.URL,
		delay:   delay,
		dialer:  dialer,
		tokens:  tokens,
		sink:    sink,
		state:   StateDisconnected,
		baseCtx: context.Background(),
		subs:    make(map[int]func(Status)),
	}
	recordState(StateDisconnected)
	return c, nil
}

// Connect opens the channel with the current access token. It is a no-op
// while connecting or connected, and when no access token is held.
func (c *Channel) Connect(ctx context.Context) error {
	return c.connect(ctx, false, 0)
}

// connect opens the channel. A reconnect carries the generation it was
// scheduled under and gives up once Disconnect or another Connect has moved
// past it; only an explicit Connect marks the channel as wanted.
func (c *Channel) connect(ctx context.Context, reconnect bool, gen uint64) error {
	log := observability.FromContext(ctx)

	c.mu.Lock()
	if c.state != StateDisconnected || (reconnect && c.staleLocked(gen)) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	if token == "" {
		log.Warn("no access token available for notification channel")
		return nil
	}

	target, err := c.endpoint(token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateDisconnected || (reconnect && c.staleLocked(gen)) {
		c.mu.Unlock()
		return nil
	}
	if !reconnect {
		c.wanted = true
	}
	c.attempt++
	attempt := c.attempt
	c.baseCtx = context.WithoutCancel(ctx)
	c.stopTimerLocked()
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	c.notify()

	conn, err := c.dialer.Dial(ctx, target)

	c.mu.Lock()
	if attempt != c.attempt {
		// Disconnect, or a later Connect, superseded this dial.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		if c.wanted {
			c.scheduleLocked()
		}
		c.mu.Unlock()
		c.notify()
		log.Warn("notification channel connect failed", slog.String("error", err.Error()))
		return nil
	}
	c.conn = conn
	c.setStateLocked(StateConnected)
	c.mu.Unlock()
	c.notify()

	log.Info("notification channel connected")
	go c.readLoop(conn)
	return nil
}

// Disconnect drops the retained handle, cancels any pending reconnect and
// closes the connection. No reconnect follows.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.wanted = false
	c.attempt++
	c.stopTimerLocked()
	changed := c.state != StateDisconnected
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if changed {
		c.notify()
	}
}

// Status reports the current state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe registers fn to receive status changes.
func (c *Channel) Subscribe(fn func(Status)) func() {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Channel) readLoop(conn Conn) {
	c.mu.Lock()
	ctx := c.baseCtx
	c.mu.Unlock()
	log := observability.FromContext(ctx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("notification channel closed", slog.String("error", err.Error()))
			}
			break
		}
		c.handle(ctx, data)
	}

	c.mu.Lock()
	if c.conn != conn {
		// Disconnect or a newer connection already owns the handle.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	if c.wanted {
		c.scheduleLocked()
	}
	c.mu.Unlock()
	c.notify()

	conn.Close()
}

func (c *Channel) handle(ctx context.Context, data []byte) {
	log := observability.FromContext(ctx)

	var msg domain.ChannelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		observability.ChannelMessages.WithLabelValues("unparsed", "malformed").Inc()
		log.Warn("malformed notification message", slog.String("error", err.Error()))
		return
	}

	in, err := Render(msg)
	if err != nil {
		outcome := "malformed"
		if errors.Is(err, ErrUnknownMessageType) {
			outcome = "unknown"
		}
		observability.ChannelMessages.WithLabelValues(metricType(msg.Type), outcome).Inc()
		log.Warn("dropping notification message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
		return
	}

	c.sink.Add(ctx, in)
	observability.ChannelMessages.WithLabelValues(msg.Type, "delivered").Inc()
}

// scheduleLocked arms the single reconnect timer.
func (c *Channel) scheduleLocked() {
	if c.reconnect != nil {
		return
	}
	ctx := c.baseCtx
	var timer *time.Timer
	timer = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		if c.reconnect != timer || !c.wanted {
			c.mu.Unlock()
			return
		}
		c.reconnect = nil
		gen := c.attempt
		c.mu.Unlock()

		observability.ChannelReconnects.Inc()
		if err := c.connect(ctx, true, gen); err != nil {
			observability.FromContext(ctx).Warn("notification channel reconnect failed", slog.String("error", err.Error()))
		}
	})
	c.reconnect = timer
	observability.FromContext(ctx).Info("notification channel reconnect scheduled", slog.Duration("delay", c.delay))
}

func (c *Channel) staleLocked(gen uint64) bool {
	return gen != c.attempt || !c.wanted
}

func (c *Channel) stopTimerLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Channel) setStateLocked(s State) {
	c.state = s
	recordState(s)
}

func (c *Channel) statusLocked() Status {
	return Status{
		State:            c.state,
		Connected:        c.state == StateConnected,
		ReconnectPending: c.reconnect != nil,
	}
}

func (c *Channel) notify() {
	st := c.Status()

	c.subsMu.Lock()
	subs := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

func (c *Channel) endpoint(token string) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid channel URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func recordState(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		observability.ChannelState.WithLabelValues(string(st)).Set(v)
	}
}

// metricType bounds label cardinality for unrecognised types.
func metricType(t string) string {
	switch t {
	case MessagePaymentCompleted, MessagePaymentFailed, MessageRefundProcessed,
		MessageAccountUpdated, MessageSecurityAlert, MessageSystemMaintenance:
		return t
	}
	return "other"
}
