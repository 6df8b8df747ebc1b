//go:build e2e
// +build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"payment-console/internal/domain"
	"payment-console/internal/notification"
	ws "payment-console/internal/websocket"
)

func TestSessionE2E_LoginPersistsTokensAndConnectsChannel(t *testing.T) {
	a := startAgent(t, false)
	client := NewTestClient(t, a)

	view := client.Login()

	if !view.IsAuthenticated {
		t.Fatalf("expected authenticated session, got %+v", view)
	}
	if view.User == nil || view.User.Username != backendUsername {
		t.Fatalf("expected user %q, got %+v", backendUsername, view.User)
	}
	assertEqual(t, true, view.HasAccessToken, "hasAccessToken")
	assertEqual(t, true, view.HasRefreshToken, "hasRefreshToken")

	pair, err := a.tokens.Tokens(testContext)
	assertNoError(t, err, "failed to read stored tokens")
	if !pair.Complete() {
		t.Fatalf("expected a complete token pair in postgres, got %+v", pair)
	}

	// The snapshot is sealed, so raw tokens never appear in the table.
	raw, err := a.kv.Get(testContext, domain.KeyAuthStorage)
	assertNoError(t, err, "failed to read auth snapshot")
	if strings.Contains(raw, pair.AccessToken) || strings.Contains(raw, pair.RefreshToken) {
		t.Error("auth snapshot stored tokens in plain text")
	}

	waitFor(t, 5*time.Second, func() bool {
		return a.channel.Status().Connected && backend.SocketCount() == 1
	}, "notification channel to connect")

	var status notification.Status
	client.DoJSON(http.MethodGet, "/api/v1/notifications/channel", nil, http.StatusOK, &status)
	assertEqual(t, notification.StateConnected, status.State, "channel state")
}

func TestSessionE2E_InvalidCredentials(t *testing.T) {
	a := startAgent(t, false)
	client := NewTestClient(t, a)

	var view SessionView
	client.DoJSON(http.MethodPost, "/api/v1/session/login", map[string]string{
		"usernameOrEmail": backendUsername,
		"password":        "wrong-password",
	}, http.StatusUnauthorized, &view)

	assertEqual(t, false, view.IsAuthenticated, "isAuthenticated")
	assertEqual(t, "Invalid username or password", view.Error, "error")

	pair, err := a.tokens.Tokens(testContext)
	assertNoError(t, err, "failed to read stored tokens")
	if !pair.Empty() {
		t.Errorf("expected no stored tokens after failed login, got %+v", pair)
	}
	assertEqual(t, 0, backend.SocketCount(), "open notification sockets")
}

func TestSessionE2E_ExpiredAccessTokenRetriesOnce(t *testing.T) {
	a := startAgent(t, false)
	client := NewTestClient(t, a)
	client.Login()

	before, err := a.tokens.Tokens(testContext)
	assertNoError(t, err, "failed to read stored tokens")
	refreshes := backend.RefreshCalls()

	backend.ExpireAccessTokens()

	status, raw := client.Do(http.MethodGet, "/api/v1/session/profile", nil)
	if status != http.StatusOK {
		t.Fatalf("expected profile after inline refresh, got %d: %s", status, raw)
	}

	var env domain.Envelope
	assertNoError(t, json.Unmarshal(raw, &env), "failed to decode profile envelope")
	var user domain.User
	assertNoError(t, env.Decode(&user), "failed to decode profile")
	assertEqual(t, backendUsername, user.Username, "profile username")

	assertEqual(t, refreshes+1, backend.RefreshCalls(), "refresh calls")

	after, err := a.tokens.Tokens(testContext)
	assertNoError(t, err, "failed to read rotated tokens")
	if after.AccessToken == before.AccessToken || after.RefreshToken == before.RefreshToken {
		t.Error("expected the token pair to rotate")
	}
	if !client.Session().IsAuthenticated {
		t.Error("session should stay authenticated after a successful refresh")
	}
}

func TestSessionE2E_RefreshFailureRedirectsToLogin(t *testing.T) {
	a := startAgent(t, false)
	client := NewTestClient(t, a)
	client.Login()
	waitFor(t, 5*time.Second, func() bool { return a.channel.Status().Connected }, "channel to connect")

	state := ConnectState(t, a)
	backend.RevokeAll()

	status, raw := client.Do(http.MethodGet, "/api/v1/session/profile", nil)
	assertEqual(t, http.StatusUnauthorized, status, "profile status after failed refresh: "+string(raw))

	var redirect struct {
		LoginPath string `json:"loginPath"`
	}
	assertNoError(t, json.Unmarshal(state.WaitForEvent(ws.EventRedirect, 5*time.Second), &redirect), "failed to decode redirect event")
	assertEqual(t, "/login", redirect.LoginPath, "redirect login path")

	view := client.Session()
	assertEqual(t, false, view.IsAuthenticated, "isAuthenticated")
	assertEqual(t, domain.SessionExpiredMessage, view.Error, "session error")

	pair, err := a.tokens.Tokens(testContext)
	assertNoError(t, err, "failed to read stored tokens")
	if !pair.Empty() {
		t.Errorf("expected tokens purged, got %+v", pair)
	}

	waitFor(t, 5*time.Second, func() bool {
		return a.channel.Status().State == notification.StateDisconnected
	}, "channel to disconnect after session expiry")
}

func TestSessionE2E_LogoutDisconnectsChannel(t *testing.T) {
	a := startAgent(t, false)
	client := NewTestClient(t, a)
	client.Login()
	waitFor(t, 5*time.Second, func() bool { return backend.SocketCount() == 1 }, "channel to connect")

	var view SessionView
	client.DoJSON(http.MethodPost, "/api/v1/session/logout", nil, http.StatusOK, &view)
	assertEqual(t, false, view.IsAuthenticated, "isAuthenticated after logout")
	assertEqual(t, false, view.HasRefreshToken, "hasRefreshToken after logout")

	waitFor(t, 5*time.Second, func() bool {
		return backend.SocketCount() == 0 && a.channel.Status().State == notification.StateDisconnected
	}, "channel to close after logout")

	// A closed-by-logout channel must not come back on its own.
	time.Sleep(500 * time.Millisecond)
	assertEqual(t, 0, backend.SocketCount(), "sockets after reconnect delay")
	assertEqual(t, false, a.channel.Status().ReconnectPending, "reconnect pending")
}

func TestSessionE2E_RestoresSessionAfterRestart(t *testing.T) {
	first := startAgent(t, false)
	NewTestClient(t, first).Login()

	second := startAgent(t, true)
	view := NewTestClient(t, second).Session()

	if !view.IsAuthenticated {
		t.Fatalf("expected restored session, got %+v", view)
	}
	if view.User == nil || view.User.Username != backendUsername {
		t.Fatalf("expected restored user %q, got %+v", backendUsername, view.User)
	}
	assertEqual(t, false, view.IsLoading, "isLoading after bootstrap")
}

func TestSessionE2E_StateSocketStreamsSession(t *testing.T) {
	a := startAgent(t, false)
	client := NewTestClient(t, a)
	state := ConnectState(t, a)

	eventType, data := state.ReadEvent(5 * time.Second)
	assertEqual(t, ws.EventSession, eventType, "first event type")
	var initial SessionView
	assertNoError(t, json.Unmarshal(data, &initial), "failed to decode initial session")
	assertEqual(t, false, initial.IsAuthenticated, "initial isAuthenticated")

	client.Login()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var view SessionView
		assertNoError(t, json.Unmarshal(state.WaitForEvent(ws.EventSession, 5*time.Second), &view), "failed to decode session event")
		if view.IsAuthenticated {
			return
		}
	}
	t.Fatal("no authenticated session pushed to the state socket")
}

func TestSessionE2E_ControlTokenRequired(t *testing.T) {
	a := startAgent(t, false)

	resp, err := http.Get(a.baseURL + "/api/v1/session")
	assertNoError(t, err, "request failed")
	resp.Body.Close()
	assertEqual(t, http.StatusUnauthorized, resp.StatusCode, "status without control token")

	resp, err = http.Get(a.baseURL + "/health/ready")
	assertNoError(t, err, "readiness request failed")
	resp.Body.Close()
	assertEqual(t, http.StatusOK, resp.StatusCode, "readiness status")
}
