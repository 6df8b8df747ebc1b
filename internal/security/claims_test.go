package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return token
}

func TestAccessTokenExpiry(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{"sub": "u-1", "exp": exp.Unix()})

	got, err := AccessTokenExpiry(token)
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))
}

func TestAccessTokenExpiry_Errors(t *testing.T) {
	_, err := AccessTokenExpiry("opaque-token")
	assert.Error(t, err)

	_, err = AccessTokenExpiry(signedToken(t, jwt.MapClaims{"sub": "u-1"}))
	assert.ErrorIs(t, err, ErrNoExpiry)
}

func TestExpiredAt(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"future_exp", signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), false},
		{"past_exp", signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}), true},
		{"within_leeway", signedToken(t, jwt.MapClaims{"exp": now.Add(10 * time.Second).Unix()}), true},
		{"opaque", "AT1", false},
		{"no_exp", signedToken(t, jwt.MapClaims{"sub": "u-1"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpiredAt(tt.token, now, 30*time.Second))
		})
	}
}
