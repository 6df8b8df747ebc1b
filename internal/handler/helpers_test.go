package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"payment-console/internal/domain"
	"payment-console/internal/notification"
	"payment-console/internal/persist"
	"payment-console/internal/repository/memory"
	"payment-console/internal/session"
	"payment-console/internal/testutil"
	"payment-console/internal/tokenstore"

	"github.com/stretchr/testify/require"
)

const testControlToken = "control-secret"

type fakeChannel struct {
	mu         sync.Mutex
	status     notification.Status
	connectErr error
	connects   int
}

func (f *fakeChannel) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.status = notification.Status{State: notification.StateConnected, Connected: true}
	return nil
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = notification.Status{State: notification.StateDisconnected}
}

func (f *fakeChannel) Status() notification.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

type testAgent struct {
	api           *testutil.MockAPI
	kv            *memory.KVStore
	manager       *session.Manager
	notifications *notification.Store
	channel       *fakeChannel
	router        http.Handler
}

func newTestAgent(t *testing.T) *testAgent {
	t.Helper()
	kv := memory.NewKVStore()
	snapshots := persist.New(kv, nil)
	a := &testAgent{
		api:           &testutil.MockAPI{},
		kv:            kv,
		notifications: notification.NewStore(nil, nil),
		channel:       &fakeChannel{status: notification.Status{State: notification.StateDisconnected}},
	}
	a.manager = session.NewManager(a.api, tokenstore.New(kv), snapshots, nil, session.Options{})
	t.Cleanup(a.manager.StopRevalidation)

	a.router = NewRouter(RouterConfig{
		Session:           NewSessionHandler(a.manager),
		Notifications:     NewNotificationHandler(a.notifications),
		Channel:           NewChannelHandler(a.channel),
		Theme:             NewThemeHandler(snapshots),
		ControlToken:      testControlToken,
		AllowedOrigins:    []string{"http://localhost:3000"},
		OpenAPIValidation: true,
	})
	return a
}

func (a *testAgent) do(t *testing.T, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, testutil.NewControlRequest(t, method, url, testControlToken, body))
	return w
}

func (a *testAgent) login(t *testing.T) *domain.User {
	t.Helper()
	user := testutil.NewTestUser()
	a.api.LoginFunc = func(context.Context, domain.LoginRequest) *domain.Envelope {
		return testutil.AuthEnvelope("AT1", "RT1", user)
	}
	w := a.do(t, http.MethodPost, "/api/v1/session/login", map[string]any{"usernameOrEmail": "ann", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return user
}
