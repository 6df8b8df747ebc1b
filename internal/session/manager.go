package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"payment-console/internal/domain"
	"payment-console/internal/observability"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRevalidationInterval = 30 * time.Minute

	loginFailedMessage    = "Login failed"
	registerFailedMessage = "Registration failed"
	loggedOutMessage      = "Logged out successfully"
)

// API is the subset of the backend client the manager drives.
// *apiclient.Client satisfies it.
type API interface {
	Login(ctx context.Context, req domain.LoginRequest) *domain.Envelope
	Register(ctx context.Context, req domain.RegisterRequest) *domain.Envelope
	Refresh(ctx context.Context, refreshToken string) *domain.Envelope
	Logout(ctx context.Context, refreshToken string) *domain.Envelope
	LogoutAll(ctx context.Context) *domain.Envelope
	Validate(ctx context.Context) *domain.Envelope
	Profile(ctx context.Context) *domain.Envelope
	CurrentUser(ctx context.Context) *domain.Envelope
	UpdateProfile(ctx context.Context, fields map[string]any) *domain.Envelope
	ForgotPassword(ctx context.Context, email string) *domain.Envelope
	ResetPassword(ctx context.Context, token, newPassword string) *domain.Envelope
	VerifyEmail(ctx context.Context, token string) *domain.Envelope
	ChangePassword(ctx context.Context, currentPassword, newPassword string) *domain.Envelope
}

// SnapshotStore persists the session subset. *persist.Store satisfies it.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (domain.Snapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error
}

// Options tunes a Manager. Zero values select defaults.
type Options struct {
	RevalidationInterval time.Duration
	Now                  func() time.Time
}

// Manager is the single source of truth for authentication state. All
// mutations go through update, which persists the snapshot and notifies
// subscribers.
type Manager struct {
	api       API
	tokens    domain.TokenStore
	snapshots SnapshotStore
	toaster   domain.Toaster

	interval time.Duration
	now      func() time.Time

	refreshGroup singleflight.Group

	// commitMu orders persist and publish the same way mutations are
	// applied. mu alone guards reads of state.
	commitMu sync.Mutex
	mu       sync.RWMutex
	state    domain.Session

	subsMu  sync.Mutex
	subs    map[int]func(domain.Session)
	nextSub int

	schedMu   sync.Mutex
	scheduler *cron.Cron
}

// NewManager creates a manager with an empty session. toaster may be nil.
func NewManager(api API, tokens domain.TokenStore, snapshots SnapshotStore, toaster domain.Toaster, opts Options) *Manager {
	interval := opts.RevalidationInterval
	if interval <= 0 {
		interval = DefaultRevalidationInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		api:       api,
		tokens:    tokens,
		snapshots: snapshots,
		toaster:   toaster,
		interval:  interval,
		now:       now,
		subs:      make(map[int]func(domain.Session)),
	}
}

// Session returns a copy of the current state.
func (m *Manager) Session() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// Subscribe registers fn to receive a copy of the session after every
// mutation, in mutation order. fn runs while the mutation commits and must
// not call back into the manager's mutating methods. The returned func
// removes the subscription.
func (m *Manager) Subscribe(fn func(domain.Session)) func() {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

// Login authenticates with credentials. On failure the session and durable
// tokens are cleared and an error wrapping domain.ErrAuthFailed is returned.
func (m *Manager) Login(ctx context.Context, req domain.LoginRequest) error {
	m.beginAuth(ctx)
	env := m.api.Login(ctx, req)
	return m.completeAuth(ctx, env, loginFailedMessage, func(u *domain.User) string {
		return fmt.Sprintf("Welcome back, %s!", u.FirstName)
	})
}

// Register creates an account and signs in with the returned credentials.
func (m *Manager) Register(ctx context.Context, req domain.RegisterRequest) error {
	m.beginAuth(ctx)
	env := m.api.Register(ctx, req)
	return m.completeAuth(ctx, env, registerFailedMessage, func(u *domain.User) string {
		return fmt.Sprintf("Welcome to Payment System, %s!", u.FirstName)
	})
}

func (m *Manager) beginAuth(ctx context.Context) {
	m.update(ctx, func(s *domain.Session) {
		s.IsLoading = true
		s.Error = ""
	})
}

func (m *Manager) completeAuth(ctx context.Context, env *domain.Envelope, fallback string, welcome func(*domain.User) string) error {
	log := observability.FromContext(ctx)

	if !env.Success {
		return m.failAuth(ctx, env.FailureMessage(fallback))
	}

	var auth domain.AuthResponse
	if err := env.Decode(&auth); err != nil {
		log.Error("malformed auth response", slog.String("error", err.Error()))
		return m.failAuth(ctx, fallback)
	}

	if auth.User == nil || !auth.Tokens().Complete() {
		return m.failAuth(ctx, fallback)
	}

	if err := m.tokens.Save(ctx, auth.Tokens()); err != nil {
		log.Error("failed to persist tokens", slog.String("error", err.Error()))
		return m.failAuth(ctx, fallback)
	}

	user := auth.User.Clone()
	m.update(ctx, func(s *domain.Session) {
		*s = domain.Session{
			User:            &user,
			AccessToken:     auth.AccessToken,
			RefreshToken:    auth.RefreshToken,
			IsAuthenticated: true,
		}
	})

	log.Info("session authenticated", slog.String("user_id", user.ID))
	m.toast(welcome(&user), domain.SeveritySuccess)
	return nil
}

func (m *Manager) failAuth(ctx context.Context, message string) error {
	m.clearTokens(ctx)
	m.update(ctx, func(s *domain.Session) {
		*s = domain.Session{Error: message}
	})
	m.toast(message, domain.SeverityError)
	return fmt.Errorf("%w: %s", domain.ErrAuthFailed, message)
}

// Logout ends the session locally regardless of what the backend answers.
func (m *Manager) Logout(ctx context.Context) {
	if refreshToken := m.refreshToken(ctx); refreshToken != "" {
		if env := m.api.Logout(ctx, refreshToken); !env.Success {
			observability.FromContext(ctx).Warn("logout call failed, continuing locally",
				slog.String("message", env.FailureMessage("logout failed")),
			)
		}
	}
	m.teardown(ctx)
}

// LogoutAll revokes every session of the user, then ends this one locally.
func (m *Manager) LogoutAll(ctx context.Context) {
	if env := m.api.LogoutAll(ctx); !env.Success {
		observability.FromContext(ctx).Warn("logout-all call failed, continuing locally",
			slog.String("message", env.FailureMessage("logout-all failed")),
		)
	}
	m.teardown(ctx)
}

func (m *Manager) teardown(ctx context.Context) {
	m.StopRevalidation()
	m.clearTokens(ctx)
	m.update(ctx, func(s *domain.Session) {
		*s = domain.Session{}
	})
	observability.FromContext(ctx).Info("session ended")
	m.toast(loggedOutMessage, domain.SeveritySuccess)
}

// RefreshAccessToken exchanges the refresh token for a new pair. It reports
// failure instead of returning an error; on failure the session is cleared
// with SessionExpiredMessage. Concurrent callers share one in-flight refresh.
func (m *Manager) RefreshAccessToken(ctx context.Context) bool {
	trigger := triggerFrom(ctx)

	if ctx.Value(refreshingKey{}) != nil {
		// A request issued by the refresh itself hit a 401. Joining the
		// in-flight call would wait on itself.
		observability.FromContext(ctx).Error("nested token refresh rejected")
		return false
	}

	// The shared refresh must not die with whichever caller started it.
	shared := context.WithValue(context.WithoutCancel(ctx), refreshingKey{}, true)
	v, _, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.refresh(shared), nil
	})
	ok := v.(bool)

	result := "success"
	if !ok {
		result = "failure"
	}
	observability.TokenRefreshes.WithLabelValues(trigger, result).Inc()
	return ok
}

func (m *Manager) refresh(ctx context.Context) bool {
	log := observability.FromContext(ctx)

	refreshToken := m.refreshToken(ctx)
	if refreshToken == "" {
		log.Warn("token refresh failed", slog.String("error", domain.ErrNoRefreshToken.Error()))
		m.expire(ctx)
		return false
	}

	env := m.api.Refresh(ctx, refreshToken)
	var auth domain.AuthResponse
	if !env.Success || env.Decode(&auth) != nil || auth.AccessToken == "" {
		log.Warn("token refresh failed", slog.String("message", env.FailureMessage(domain.ErrRefreshFailed.Error())))
		m.expire(ctx)
		return false
	}

	pair := auth.Tokens()
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	if err := m.tokens.Save(ctx, pair); err != nil {
		log.Error("failed to persist refreshed tokens", slog.String("error", err.Error()))
		m.expire(ctx)
		return false
	}

	user := auth.User
	if user == nil {
		user = m.Session().User
	}
	if user == nil {
		user = decodeUser(m.api.CurrentUser(ctx))
	}

	m.update(ctx, func(s *domain.Session) {
		s.AccessToken = pair.AccessToken
		s.RefreshToken = pair.RefreshToken
		if user != nil {
			u := user.Clone()
			s.User = &u
		}
		s.IsAuthenticated = s.User != nil
		s.Error = ""
	})
	log.Debug("access token refreshed")
	return true
}

// expire clears the session after a failed refresh.
func (m *Manager) expire(ctx context.Context) {
	m.clearTokens(ctx)
	m.update(ctx, func(s *domain.Session) {
		*s = domain.Session{Error: domain.SessionExpiredMessage, IsLoading: s.IsLoading}
	})
}

// RedirectToLogin handles an exhausted inline refresh: the request client has
// already purged durable tokens, so only in-memory state is reset.
func (m *Manager) RedirectToLogin(ctx context.Context, loginPath string) {
	m.update(ctx, func(s *domain.Session) {
		*s = domain.Session{Error: domain.SessionExpiredMessage}
	})
	observability.FromContext(ctx).Warn("authentication required", slog.String("login_path", loginPath))
	m.toast(domain.SessionExpiredMessage, domain.SeverityError)
}

// UpdateUser shallow-merges fields into the current user. Without a user it
// does nothing.
func (m *Manager) UpdateUser(ctx context.Context, fields map[string]any) error {
	current := m.Session().User
	if current == nil {
		return nil
	}
	if _, err := current.Merge(fields); err != nil {
		return err
	}

	// Merge again against the committed user so concurrent updates compose.
	m.update(ctx, func(s *domain.Session) {
		if s.User == nil {
			return
		}
		if merged, err := s.User.Merge(fields); err == nil {
			s.User = &merged
		}
	})
	return nil
}

// ClearError drops the last authentication error.
func (m *Manager) ClearError(ctx context.Context) {
	m.update(ctx, func(s *domain.Session) { s.Error = "" })
}

// SetLoading flags an authentication flow as in progress.
func (m *Manager) SetLoading(ctx context.Context, loading bool) {
	m.update(ctx, func(s *domain.Session) { s.IsLoading = loading })
}

// refreshToken prefers the in-memory token and falls back to the durable one.
func (m *Manager) refreshToken(ctx context.Context) string {
	if t := m.Session().RefreshToken; t != "" {
		return t
	}
	t, err := m.tokens.RefreshToken(ctx)
	if err != nil {
		observability.FromContext(ctx).Error("failed to read refresh token", slog.String("error", err.Error()))
		return ""
	}
	return t
}

func (m *Manager) clearTokens(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		observability.FromContext(ctx).Error("failed to clear tokens", slog.String("error", err.Error()))
	}
}

func (m *Manager) fetchProfile(ctx context.Context) *domain.User {
	return decodeUser(m.api.Profile(ctx))
}

func decodeUser(env *domain.Envelope) *domain.User {
	var user domain.User
	if !env.Success || env.Decode(&user) != nil {
		return nil
	}
	return &user
}

// update applies fn under the lock, enforces the authentication invariant,
// persists the snapshot and notifies subscribers. Concurrent updates commit
// one at a time, so the last snapshot written is the in-memory state.
func (m *Manager) update(ctx context.Context, fn func(s *domain.Session)) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.mu.Lock()
	fn(&m.state)
	if m.state.User == nil || !m.state.Tokens().Complete() {
		m.state.IsAuthenticated = false
	}
	next := m.state.Clone()
	m.mu.Unlock()

	m.persist(ctx, next)
	m.publish(next)
}

func (m *Manager) install(ctx context.Context, s domain.Session) {
	m.update(ctx, func(cur *domain.Session) {
		loading := cur.IsLoading
		*cur = s.Clone()
		cur.IsLoading = loading
	})
}

func (m *Manager) persist(ctx context.Context, s domain.Session) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.SaveSnapshot(ctx, s.Snapshot()); err != nil {
		observability.FromContext(ctx).Error("failed to persist session snapshot", slog.String("error", err.Error()))
	}
}

func (m *Manager) publish(s domain.Session) {
	if s.IsAuthenticated {
		observability.SessionAuthenticated.Set(1)
	} else {
		observability.SessionAuthenticated.Set(0)
	}

	m.subsMu.Lock()
	subs := make([]func(domain.Session), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range subs {
		fn(s.Clone())
	}
}

func (m *Manager) toast(message string, severity domain.Severity) {
	if m.toaster == nil || message == "" {
		return
	}
	m.toaster.Toast(domain.Toast{Message: message, Severity: severity, Duration: severity.ToastDuration()})
}

type (
	triggerKey    struct{}
	refreshingKey struct{}
)

// WithTrigger labels refreshes started under ctx for metrics and logs.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func triggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return "inline"
}
