// Package testutil provides shared test doubles, fixtures and helpers for
// the payment-console packages.
package testutil

import (
	"context"
	"errors"
	"sync"

	"payment-console/internal/domain"
)

var ErrMockNotImplemented = errors.New("mock function not implemented")

// MockAPI implements the backend API consumed by the session manager.
// Unset Func fields answer with a failed envelope.
type MockAPI struct {
	mu    sync.Mutex
	calls []string

	LoginFunc          func(ctx context.Context, req domain.LoginRequest) *domain.Envelope
	RegisterFunc       func(ctx context.Context, req domain.RegisterRequest) *domain.Envelope
	RefreshFunc        func(ctx context.Context, refreshToken string) *domain.Envelope
	LogoutFunc         func(ctx context.Context, refreshToken string) *domain.Envelope
	LogoutAllFunc      func(ctx context.Context) *domain.Envelope
	ValidateFunc       func(ctx context.Context) *domain.Envelope
	ProfileFunc        func(ctx context.Context) *domain.Envelope
	CurrentUserFunc    func(ctx context.Context) *domain.Envelope
	UpdateProfileFunc  func(ctx context.Context, fields map[string]any) *domain.Envelope
	ForgotPasswordFunc func(ctx context.Context, email string) *domain.Envelope
	ResetPasswordFunc  func(ctx context.Context, token, newPassword string) *domain.Envelope
	VerifyEmailFunc    func(ctx context.Context, token string) *domain.Envelope
	ChangePasswordFunc func(ctx context.Context, currentPassword, newPassword string) *domain.Envelope
}

func (m *MockAPI) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

// Calls returns the endpoint names invoked so far, in order.
func (m *MockAPI) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times name was invoked.
func (m *MockAPI) CallCount(name string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func notImplemented() *domain.Envelope {
	return FailureEnvelope(ErrMockNotImplemented.Error(), "NOT_IMPLEMENTED")
}

func (m *MockAPI) Login(ctx context.Context, req domain.LoginRequest) *domain.Envelope {
	m.record("login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return notImplemented()
}

func (m *MockAPI) Register(ctx context.Context, req domain.RegisterRequest) *domain.Envelope {
	m.record("register")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return notImplemented()
}

func (m *MockAPI) Refresh(ctx context.Context, refreshToken string) *domain.Envelope {
	m.record("refresh")
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return notImplemented()
}

func (m *MockAPI) Logout(ctx context.Context, refreshToken string) *domain.Envelope {
	m.record("logout")
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, refreshToken)
	}
	return SuccessEnvelope(nil)
}

func (m *MockAPI) LogoutAll(ctx context.Context) *domain.Envelope {
	m.record("logout-all")
	if m.LogoutAllFunc != nil {
		return m.LogoutAllFunc(ctx)
	}
	return SuccessEnvelope(nil)
}

func (m *MockAPI) Validate(ctx context.Context) *domain.Envelope {
	m.record("validate")
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx)
	}
	return notImplemented()
}

func (m *MockAPI) Profile(ctx context.Context) *domain.Envelope {
	m.record("profile")
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx)
	}
	return notImplemented()
}

func (m *MockAPI) CurrentUser(ctx context.Context) *domain.Envelope {
	m.record("current-user")
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx)
	}
	return notImplemented()
}

func (m *MockAPI) UpdateProfile(ctx context.Context, fields map[string]any) *domain.Envelope {
	m.record("update-profile")
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, fields)
	}
	return notImplemented()
}

func (m *MockAPI) ForgotPassword(ctx context.Context, email string) *domain.Envelope {
	m.record("forgot-password")
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return notImplemented()
}

func (m *MockAPI) ResetPassword(ctx context.Context, token, newPassword string) *domain.Envelope {
	m.record("reset-password")
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, token, newPassword)
	}
	return notImplemented()
}

func (m *MockAPI) VerifyEmail(ctx context.Context, token string) *domain.Envelope {
	m.record("verify-email")
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, token)
	}
	return notImplemented()
}

func (m *MockAPI) ChangePassword(ctx context.Context, currentPassword, newPassword string) *domain.Envelope {
	m.record("change-password")
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, currentPassword, newPassword)
	}
	return notImplemented()
}

// RecordingToaster captures toasts for assertions.
type RecordingToaster struct {
	mu     sync.Mutex
	toasts []domain.Toast
}

func (r *RecordingToaster) Toast(t domain.Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	r.mu.Unlock()
}

// Toasts returns a copy of the captured toasts.
func (r *RecordingToaster) Toasts() []domain.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Toast(nil), r.toasts...)
}

// Last returns the most recent toast, or the zero value.
func (r *RecordingToaster) Last() domain.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return domain.Toast{}
	}
	return r.toasts[len(r.toasts)-1]
}

// MockKVStore wraps an in-memory map and lets tests inject failures.
type MockKVStore struct {
	mu     sync.Mutex
	Values map[string]string

	GetErr    error
	SetErr    error
	DeleteErr error
	PingErr   error
}

func NewMockKVStore() *MockKVStore {
	return &MockKVStore{Values: make(map[string]string)}
}

func (m *MockKVStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", m.GetErr
	}
	v, ok := m.Values[key]
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	return v, nil
}

func (m *MockKVStore) Set(ctx context.Context, key, value string) error {
	return m.SetMany(ctx, map[string]string{key: value})
}

func (m *MockKVStore) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	for k, v := range values {
		m.Values[k] = v
	}
	return nil
}

func (m *MockKVStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	for _, k := range keys {
		delete(m.Values, k)
	}
	return nil
}

func (m *MockKVStore) Ping(context.Context) error {
	return m.PingErr
}

// Has reports whether key is present.
func (m *MockKVStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Values[key]
	return ok
}
