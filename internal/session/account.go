package session

import (
	"context"

	"payment-console/internal/domain"
)

// Account helpers pass through to the backend and return its envelope.

// ForgotPassword asks the backend to send a reset link to email.
func (m *Manager) ForgotPassword(ctx context.Context, email string) *domain.Envelope {
	return m.api.ForgotPassword(ctx, email)
}

// ResetPassword sets a new password using a reset token.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) *domain.Envelope {
	return m.api.ResetPassword(ctx, token, newPassword)
}

// VerifyEmail confirms an email address with its verification token.
func (m *Manager) VerifyEmail(ctx context.Context, token string) *domain.Envelope {
	return m.api.VerifyEmail(ctx, token)
}

// ChangePassword replaces the signed-in user's password.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) *domain.Envelope {
	return m.api.ChangePassword(ctx, currentPassword, newPassword)
}

// GetProfile fetches the profile and refreshes the session user with it.
func (m *Manager) GetProfile(ctx context.Context) *domain.Envelope {
	env := m.api.Profile(ctx)
	m.adoptUser(ctx, env)
	return env
}

// UpdateProfile saves fields and adopts the user the backend returns.
func (m *Manager) UpdateProfile(ctx context.Context, fields map[string]any) *domain.Envelope {
	env := m.api.UpdateProfile(ctx, fields)
	m.adoptUser(ctx, env)
	return env
}

func (m *Manager) adoptUser(ctx context.Context, env *domain.Envelope) {
	if !env.Success {
		return
	}
	var user domain.User
	if err := env.Decode(&user); err != nil {
		return
	}
	m.update(ctx, func(s *domain.Session) {
		if s.User != nil {
			s.User = &user
		}
	})
}
