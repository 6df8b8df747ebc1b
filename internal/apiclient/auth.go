package apiclient

import (
	"context"

	"payment-console/internal/domain"
)

// Backend endpoints used by the session subsystem.
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathRefresh        = "/auth/refresh"
	PathLogout         = "/auth/logout"
	PathLogoutAll      = "/auth/logout-all"
	PathValidate       = "/auth/validate"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
	PathVerifyEmail    = "/auth/verify-email"
	PathMe             = "/users/me"
	PathChangePassword = "/users/me/change-password"
)

// Login exchanges credentials for a token pair and the user.
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) *domain.Envelope {
	return c.Post(ctx, PathLogin, req)
}

// Register creates an account and returns its first token pair.
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) *domain.Envelope {
	return c.Post(ctx, PathRegister, req)
}

// Refresh exchanges refreshToken for a new pair. The request is never
// intercepted on 401, so a failed refresh cannot trigger another refresh.
func (c *Client) Refresh(ctx context.Context, refreshToken string) *domain.Envelope {
	return c.Post(ctx, PathRefresh, struct{}{}, WithBearer(refreshToken), WithoutRetry())
}

// Logout revokes refreshToken on the backend.
func (c *Client) Logout(ctx context.Context, refreshToken string) *domain.Envelope {
	return c.Post(ctx, PathLogout, struct{}{}, WithBearer(refreshToken))
}

// LogoutAll revokes every session of the current user.
func (c *Client) LogoutAll(ctx context.Context) *domain.Envelope {
	return c.Post(ctx, PathLogoutAll, nil)
}

// Validate checks the stored access token.
func (c *Client) Validate(ctx context.Context) *domain.Envelope {
	return c.Get(ctx, PathValidate)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) *domain.Envelope {
	return c.Post(ctx, PathForgotPassword, map[string]string{"email": email})
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) *domain.Envelope {
	return c.Post(ctx, PathResetPassword, map[string]string{
		"token":       token,
		"newPassword": newPassword,
	})
}

func (c *Client) VerifyEmail(ctx context.Context, token string) *domain.Envelope {
	return c.Post(ctx, PathVerifyEmail, map[string]string{"token": token})
}

// Profile loads the current user.
func (c *Client) Profile(ctx context.Context) *domain.Envelope {
	return c.Get(ctx, PathMe)
}

// CurrentUser loads the profile without 401 interception. It is safe to call
// while a token refresh is in flight.
func (c *Client) CurrentUser(ctx context.Context) *domain.Envelope {
	return c.Get(ctx, PathMe, WithoutRetry())
}

// UpdateProfile saves profile fields and returns the updated user.
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]any) *domain.Envelope {
	return c.Put(ctx, PathMe, fields)
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) *domain.Envelope {
	return c.Post(ctx, PathChangePassword, map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	})
}
