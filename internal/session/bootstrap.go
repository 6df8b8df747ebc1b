package session

import (
	"context"
	"log/slog"

	"payment-console/internal/domain"
	"payment-console/internal/observability"
)

// Reconcile derives the in-memory session from a persisted snapshot and the
// durable token pair. A snapshot whose tokens do not exactly match the
// durable pair is treated as stale or tampered and yields an empty session.
func Reconcile(snap domain.Snapshot, durable domain.TokenPair) domain.Session {
	if snap.AccessToken != "" || snap.RefreshToken != "" {
		if snap.Tokens() != durable {
			return domain.Session{}
		}
	}

	s := domain.Session{
		AccessToken:  snap.AccessToken,
		RefreshToken: snap.RefreshToken,
	}
	if snap.User != nil {
		u := snap.User.Clone()
		s.User = &u
	}
	s.IsAuthenticated = snap.IsAuthenticated && s.User != nil && s.Tokens().Complete()
	return s
}

// Hydrate loads the persisted snapshot, reconciles it against the token
// store and installs the result. It returns the installed session.
func (m *Manager) Hydrate(ctx context.Context) (domain.Session, error) {
	if m.snapshots == nil {
		return m.Session(), nil
	}

	snap, found, err := m.snapshots.LoadSnapshot(ctx)
	if err != nil {
		// An unreadable snapshot must not keep a session alive.
		m.install(ctx, domain.Session{})
		return m.Session(), err
	}
	if !found {
		return m.Session(), nil
	}

	durable, err := m.tokens.Tokens(ctx)
	if err != nil {
		m.install(ctx, domain.Session{})
		return m.Session(), err
	}

	next := Reconcile(snap, durable)
	if (snap.AccessToken != "" || snap.RefreshToken != "") && next.Tokens().Empty() {
		observability.FromContext(ctx).Warn("persisted session does not match stored tokens, discarding")
	}
	m.install(ctx, next)
	return m.Session(), nil
}

// Bootstrap validates durable tokens at startup. With durable tokens and no
// authenticated session it validates, then loads the profile; a failed
// validation falls back to one refresh and then to Logout. Without any
// durable tokens the session is forced empty.
func (m *Manager) Bootstrap(ctx context.Context) {
	ctx = WithTrigger(ctx, "bootstrap")
	log := observability.FromContext(ctx)

	m.SetLoading(ctx, true)
	defer m.SetLoading(ctx, false)

	durable, err := m.tokens.Tokens(ctx)
	if err != nil {
		log.Error("bootstrap failed to read tokens", slog.String("error", err.Error()))
		m.Logout(ctx)
		return
	}

	switch {
	case durable.Complete() && !m.Session().IsAuthenticated:
		m.restore(ctx, durable)
	case durable.Empty():
		m.update(ctx, func(s *domain.Session) {
			*s = domain.Session{IsLoading: s.IsLoading}
		})
	}
}

func (m *Manager) restore(ctx context.Context, durable domain.TokenPair) {
	log := observability.FromContext(ctx)

	if env := m.api.Validate(ctx); !env.Success {
		log.Info("stored token failed validation, attempting refresh",
			slog.String("message", env.FailureMessage("validation failed")),
		)
		if !m.RefreshAccessToken(ctx) {
			m.Logout(ctx)
		}
		return
	}

	user := m.fetchProfile(ctx)
	if user == nil {
		log.Warn("stored token valid but profile could not be loaded")
		return
	}

	// The inline refresh may have rotated the pair while validating.
	if current, err := m.tokens.Tokens(ctx); err == nil && current.Complete() {
		durable = current
	}

	m.update(ctx, func(s *domain.Session) {
		s.User = user
		s.AccessToken = durable.AccessToken
		s.RefreshToken = durable.RefreshToken
		s.IsAuthenticated = true
		s.Error = ""
	})
	log.Info("session restored", slog.String("user_id", user.ID))
}
