//go:build e2e
// +build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"payment-console/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	backendUsername = "merchant.ops"
	backendPassword = "correct-horse-battery"
)

// fakeBackend plays the payment platform: envelope responses, rotating token
// pairs, and a notification socket that tests push messages through.
type fakeBackend struct {
	server   *httptest.Server
	router   chi.Router
	upgrader websocket.Upgrader

	mu           sync.Mutex
	user         domain.User
	access       map[string]bool
	refresh      map[string]bool
	refreshCalls int
	sockets      map[*websocket.Conn]struct{}
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{
		user: domain.User{
			ID:        uuid.NewString(),
			Username:  backendUsername,
			Email:     "ops@merchant.example",
			FirstName: "Morgan",
			LastName:  "Reyes",
			Role:      "MERCHANT_ADMIN",
			IsActive:  true,
		},
		access:  make(map[string]bool),
		refresh: make(map[string]bool),
		sockets: make(map[*websocket.Conn]struct{}),
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", b.login)
		r.Post("/auth/refresh", b.rotate)
		r.Post("/auth/logout", b.logout)
		r.Get("/auth/validate", b.requireAccess(b.validate))
		r.Get("/users/me", b.requireAccess(b.me))
	})
	r.Get("/ws/notifications", b.notifications)
	b.router = r

	b.server = httptest.NewServer(b)
	return b
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

func (b *fakeBackend) APIBaseURL() string {
	return b.server.URL + "/api/v1"
}

func (b *fakeBackend) WSURL() string {
	return backendWSURL(b.APIBaseURL())
}

func (b *fakeBackend) Close() {
	b.mu.Lock()
	for conn := range b.sockets {
		conn.Close()
	}
	b.mu.Unlock()
	b.server.Close()
}

// ExpireAccessTokens invalidates every issued access token so the next
// authenticated call answers 401.
func (b *fakeBackend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]bool)
}

// RevokeAll invalidates every issued token pair.
func (b *fakeBackend) RevokeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]bool)
	b.refresh = make(map[string]bool)
}

func (b *fakeBackend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

func (b *fakeBackend) SocketCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sockets)
}

// Push sends msg to every open notification socket.
func (b *fakeBackend) Push(t *testing.T, msg domain.ChannelMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal channel message: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.sockets {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("failed to push channel message: %v", err)
		}
	}
}

// DropSockets closes every notification socket from the server side.
func (b *fakeBackend) DropSockets() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.sockets {
		conn.Close()
		delete(b.sockets, conn)
	}
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if req.UsernameOrEmail != backendUsername || req.Password != backendPassword {
		writeFailure(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
		return
	}
	b.issue(w)
}

func (b *fakeBackend) rotate(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)

	b.mu.Lock()
	b.refreshCalls++
	valid := b.refresh[token]
	delete(b.refresh, token)
	b.mu.Unlock()

	if !valid {
		writeFailure(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired")
		return
	}
	b.issue(w)
}

func (b *fakeBackend) logout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	delete(b.refresh, bearer(r))
	b.mu.Unlock()
	writeSuccess(w, "Logged out", nil)
}

func (b *fakeBackend) validate(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, "Token is valid", map[string]bool{"valid": true})
}

func (b *fakeBackend) me(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	user := b.user
	b.mu.Unlock()
	writeSuccess(w, "", user)
}

func (b *fakeBackend) notifications(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	valid := b.access[r.URL.Query().Get("token")]
	b.mu.Unlock()
	if !valid {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.sockets[conn] = struct{}{}
	b.mu.Unlock()

	// Drain until the agent hangs up.
	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.sockets, conn)
			b.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *fakeBackend) requireAccess(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		valid := b.access[bearer(r)]
		b.mu.Unlock()
		if !valid {
			writeFailure(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Access token expired")
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) issue(w http.ResponseWriter) {
	access, refresh := uuid.NewString(), uuid.NewString()

	b.mu.Lock()
	b.access[access] = true
	b.refresh[refresh] = true
	user := b.user
	b.mu.Unlock()

	writeSuccess(w, "Authenticated", domain.AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    900,
		User:         &user,
	})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	raw, _ := json.Marshal(data)
	writeEnvelope(w, http.StatusOK, domain.Envelope{Success: true, Message: message, Data: raw})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, domain.Envelope{
		Message: message,
		Error: &domain.ErrorDetail{
			ErrorID:   uuid.NewString(),
			Code:      code,
			Message:   message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env domain.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}
