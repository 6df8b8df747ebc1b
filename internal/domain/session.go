package domain

import (
	"errors"
)

var (
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrAuthFailed     = errors.New("authentication failed")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrNotAuthorized  = errors.New("not authenticated")
)

// SessionExpiredMessage is surfaced after a refresh failure.
const SessionExpiredMessage = "Session expired. Please log in again."

// TokenPair is the access/refresh credential pair issued by the backend.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both tokens are present.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Empty reports whether neither token is present.
func (p TokenPair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Session is the authentication state shared with UI layers.
// IsAuthenticated is true only while User and both tokens are present.
type Session struct {
	User            *User  `json:"user"`
	AccessToken     string `json:"accessToken,omitempty"`
	RefreshToken    string `json:"refreshToken,omitempty"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsLoading       bool   `json:"isLoading"`
	Error           string `json:"error,omitempty"`
}

// Tokens returns the session's credential pair.
func (s Session) Tokens() TokenPair {
	return TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// Clone returns a copy that does not share the User pointer.
func (s Session) Clone() Session {
	if s.User != nil {
		u := s.User.Clone()
		s.User = &u
	}
	return s
}

// Snapshot is the persisted subset of a Session.
type Snapshot struct {
	User            *User  `json:"user"`
	AccessToken     string `json:"accessToken"`
	RefreshToken    string `json:"refreshToken"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// Snapshot returns the persisted subset of s.
func (s Session) Snapshot() Snapshot {
	c := s.Clone()
	return Snapshot{
		User:            c.User,
		AccessToken:     c.AccessToken,
		RefreshToken:    c.RefreshToken,
		IsAuthenticated: c.IsAuthenticated,
	}
}

// Tokens returns the snapshot's credential pair.
func (s Snapshot) Tokens() TokenPair {
	return TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// AuthResponse is the data payload of login, register and refresh envelopes.
type AuthResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	TokenType    string       `json:"tokenType,omitempty"`
	ExpiresIn    int64        `json:"expiresIn,omitempty"`
	User         *User        `json:"user"`
	Permissions  []string     `json:"permissions,omitempty"`
	SessionInfo  *SessionInfo `json:"sessionInfo,omitempty"`
}

// SessionInfo describes the server-side login context.
type SessionInfo struct {
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
	LoginTime string `json:"loginTime"`
}

// Tokens returns the response's credential pair.
func (r AuthResponse) Tokens() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
	RememberMe      bool   `json:"rememberMe,omitempty"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	UserInfo    RegisterUserInfo    `json:"userInfo"`
	AccountInfo RegisterAccountInfo `json:"accountInfo"`
}

type RegisterUserInfo struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type RegisterAccountInfo struct {
	AccountName string `json:"accountName"`
	Phone       string `json:"phone,omitempty"`
}
