package session

import (
	"context"
	"log/slog"
	"time"

	"payment-console/internal/observability"
	"payment-console/internal/security"

	"github.com/robfig/cron/v3"
)

// expiryLeeway treats access tokens this close to exp as already expired.
const expiryLeeway = 30 * time.Second

// StartRevalidation schedules RefreshAccessToken every revalidation interval.
// Each run re-checks that the session is still authenticated; failures are
// only logged. Calling it while a schedule is active is a no-op.
func (m *Manager) StartRevalidation(ctx context.Context) {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()

	if m.scheduler != nil {
		return
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(cron.Every(m.interval), cron.FuncJob(func() {
		m.revalidate(WithTrigger(context.WithoutCancel(ctx), "schedule"))
	}))
	c.Start()
	m.scheduler = c

	observability.FromContext(ctx).Info("token revalidation scheduled", slog.Duration("interval", m.interval))
}

// StopRevalidation cancels the schedule. A run already in progress finishes.
func (m *Manager) StopRevalidation() {
	m.schedMu.Lock()
	c := m.scheduler
	m.scheduler = nil
	m.schedMu.Unlock()

	if c != nil {
		c.Stop()
	}
}

// RevalidationActive reports whether a schedule is installed.
func (m *Manager) RevalidationActive() bool {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	return m.scheduler != nil
}

func (m *Manager) revalidate(ctx context.Context) {
	if !m.Session().IsAuthenticated {
		return
	}
	if !m.RefreshAccessToken(ctx) {
		observability.FromContext(ctx).Warn("scheduled token refresh failed")
	}
}

// OnForeground revalidates when the UI becomes active again. A locally
// expired JWT skips the network check; any failed validation triggers one
// refresh attempt.
func (m *Manager) OnForeground(ctx context.Context) {
	s := m.Session()
	if !s.IsAuthenticated {
		return
	}

	ctx = WithTrigger(ctx, "foreground")
	log := observability.FromContext(ctx)

	if !security.ExpiredAt(s.AccessToken, m.now(), expiryLeeway) {
		if env := m.api.Validate(ctx); env.Success {
			return
		}
	} else {
		log.Debug("access token expired locally, skipping validation")
	}

	if !m.RefreshAccessToken(ctx) {
		log.Warn("token refresh failed after foreground")
	}
}

// cronLogger routes scheduler output to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("revalidation: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)
	slog.Error("revalidation: "+msg, args...)
}
