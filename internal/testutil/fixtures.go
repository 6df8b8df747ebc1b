package testutil

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"payment-console/internal/domain"
)

var idCounter atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// NewTestUser creates a user with sensible defaults. Options override fields.
func NewTestUser(opts ...func(*domain.User)) *domain.User {
	id := nextID("user")
	u := &domain.User{
		ID:        id,
		Username:  id,
		Email:     id + "@example.com",
		FirstName: "Ann",
		LastName:  "Lee",
		Role:      "USER",
		IsActive:  true,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WithFirstName sets the user's first name.
func WithFirstName(name string) func(*domain.User) {
	return func(u *domain.User) { u.FirstName = name }
}

// WithUserID sets the user's ID.
func WithUserID(id string) func(*domain.User) {
	return func(u *domain.User) { u.ID = id }
}

// SuccessEnvelope wraps data in a successful envelope.
func SuccessEnvelope(data any) *domain.Envelope {
	env := &domain.Envelope{Success: true, Message: "OK", StatusCode: 200}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal envelope data: %v", err))
		}
		env.Data = raw
	}
	return env
}

// FailureEnvelope builds a failed envelope with the given message and code.
func FailureEnvelope(message, code string) *domain.Envelope {
	return &domain.Envelope{
		Success: false,
		Message: message,
		Error: &domain.ErrorDetail{
			ErrorID: nextID("err"),
			Code:    code,
			Message: message,
		},
	}
}

// AuthEnvelope is a successful login/refresh response.
func AuthEnvelope(accessToken, refreshToken string, user *domain.User) *domain.Envelope {
	return SuccessEnvelope(domain.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    900,
		User:         user,
	})
}
