//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"payment-console/internal/middleware"

	"github.com/gorilla/websocket"
)

// TestClient talks to one agent's control API with the control token set
type TestClient struct {
	*http.Client
	t       *testing.T
	baseURL string
}

// NewTestClient creates a control API client for a
func NewTestClient(t *testing.T, a *agent) *TestClient {
	return &TestClient{
		Client:  &http.Client{Timeout: 30 * time.Second},
		t:       t,
		baseURL: a.baseURL,
	}
}

// Do sends a JSON request and returns the status and raw body
func (tc *TestClient) Do(method, path string, body interface{}) (int, []byte) {
	tc.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			tc.t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		tc.t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ControlTokenHeader, controlToken)

	resp, err := tc.Client.Do(req)
	if err != nil {
		tc.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		tc.t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, raw
}

// DoJSON sends a request, checks the status, and decodes the body into out
func (tc *TestClient) DoJSON(method, path string, body interface{}, wantStatus int, out interface{}) {
	tc.t.Helper()
	status, raw := tc.Do(method, path, body)
	if status != wantStatus {
		tc.t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, wantStatus, status, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			tc.t.Fatalf("failed to decode %s response: %v: %s", path, err, raw)
		}
	}
}

// Login signs the agent in with the backend's known credentials
func (tc *TestClient) Login() SessionView {
	tc.t.Helper()
	var view SessionView
	tc.DoJSON(http.MethodPost, "/api/v1/session/login", map[string]string{
		"usernameOrEmail": backendUsername,
		"password":        backendPassword,
	}, http.StatusOK, &view)
	return view
}

// Session fetches the current session view
func (tc *TestClient) Session() SessionView {
	tc.t.Helper()
	var view SessionView
	tc.DoJSON(http.MethodGet, "/api/v1/session", nil, http.StatusOK, &view)
	return view
}

// SessionView mirrors the control API's session representation
type SessionView struct {
	User *struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"firstName"`
	} `json:"user"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsLoading       bool   `json:"isLoading"`
	Error           string `json:"error"`
	HasAccessToken  bool   `json:"hasAccessToken"`
	HasRefreshToken bool   `json:"hasRefreshToken"`
}

// NotificationList mirrors the control API's notification list
type NotificationList struct {
	Notifications []struct {
		ID       string                 `json:"id"`
		Type     string                 `json:"type"`
		Title    string                 `json:"title"`
		Message  string                 `json:"message"`
		Severity string                 `json:"severity"`
		IsRead   bool                   `json:"isRead"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"notifications"`
	UnreadCount int `json:"unreadCount"`
}

// StateConn is a UI subscription to the agent's state pushes
type StateConn struct {
	conn *websocket.Conn
	t    *testing.T
}

// ConnectState opens the state push socket
func ConnectState(t *testing.T, a *agent) *StateConn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(a.wsURL(), nil)
	if err != nil {
		if resp != nil {
			t.Fatalf("failed to connect state socket: %v (status %d)", err, resp.StatusCode)
		}
		t.Fatalf("failed to connect state socket: %v", err)
	}
	sc := &StateConn{conn: conn, t: t}
	t.Cleanup(func() { conn.Close() })
	return sc
}

// WaitForEvent reads events until one of eventType arrives
func (sc *StateConn) WaitForEvent(eventType string, timeout time.Duration) json.RawMessage {
	sc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		sc.conn.SetReadDeadline(deadline)
		var event struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := sc.conn.ReadJSON(&event); err != nil {
			sc.t.Fatalf("no %q event within %s: %v", eventType, timeout, err)
		}
		if event.Type == eventType {
			return event.Data
		}
	}
}

// ReadEvent reads one event
func (sc *StateConn) ReadEvent(timeout time.Duration) (string, json.RawMessage) {
	sc.t.Helper()
	sc.conn.SetReadDeadline(time.Now().Add(timeout))
	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := sc.conn.ReadJSON(&event); err != nil {
		sc.t.Fatalf("failed to read state event: %v", err)
	}
	return event.Type, event.Data
}

// waitFor polls cond until it holds or timeout elapses
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...interface{}) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", fmt.Sprintf(format, args...))
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}
