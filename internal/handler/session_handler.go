package handler

import (
	"context"
	"net/http"

	"payment-console/internal/domain"
	"payment-console/internal/session"
)

// SessionView is the session as exposed to UI layers. Raw tokens never
// leave the agent.
type SessionView struct {
	User            *domain.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsLoading       bool         `json:"isLoading"`
	Error           string       `json:"error,omitempty"`
	HasAccessToken  bool         `json:"hasAccessToken"`
	HasRefreshToken bool         `json:"hasRefreshToken"`
}

func NewSessionView(s domain.Session) SessionView {
	return SessionView{
		User:            s.User,
		IsAuthenticated: s.IsAuthenticated,
		IsLoading:       s.IsLoading,
		Error:           s.Error,
		HasAccessToken:  s.AccessToken != "",
		HasRefreshToken: s.RefreshToken != "",
	}
}

// SessionHandler exposes the session manager over HTTP.
type SessionHandler struct {
	manager *session.Manager
}

func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

func (h *SessionHandler) view() SessionView {
	return NewSessionView(h.manager.Session())
}

// Get returns the current session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view())
}

// Login authenticates with credentials.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.manager.Login(r.Context(), req); err != nil {
		writeJSON(w, http.StatusUnauthorized, h.view())
		return
	}
	writeJSON(w, http.StatusOK, h.view())
}

// Register creates an account and logs in.
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.manager.Register(r.Context(), req); err != nil {
		writeJSON(w, http.StatusBadRequest, h.view())
		return
	}
	writeJSON(w, http.StatusOK, h.view())
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.manager.Logout(r.Context())
	writeJSON(w, http.StatusOK, h.view())
}

func (h *SessionHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	h.manager.LogoutAll(r.Context())
	writeJSON(w, http.StatusOK, h.view())
}

// Refresh rotates the token pair now.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := session.WithTrigger(r.Context(), "manual")
	if !h.manager.RefreshAccessToken(ctx) {
		writeJSON(w, http.StatusUnauthorized, h.view())
		return
	}
	writeJSON(w, http.StatusOK, h.view())
}

// Foreground starts revalidation and returns without waiting for it.
func (h *SessionHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	go h.manager.OnForeground(ctx)
	w.WriteHeader(http.StatusAccepted)
}

// UpdateUser merges the posted fields into the session user.
func (h *SessionHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if !decodeJSON(w, r, &fields) {
		return
	}

	if err := h.manager.UpdateUser(r.Context(), fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.view())
}

func (h *SessionHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	h.manager.ClearError(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) Profile(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, h.manager.GetProfile(r.Context()))
}

func (h *SessionHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if !decodeJSON(w, r, &fields) {
		return
	}
	writeEnvelope(w, h.manager.UpdateProfile(r.Context(), fields))
}

func (h *SessionHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeEnvelope(w, h.manager.ForgotPassword(r.Context(), req.Email))
}

func (h *SessionHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeEnvelope(w, h.manager.ResetPassword(r.Context(), req.Token, req.NewPassword))
}

func (h *SessionHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeEnvelope(w, h.manager.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword))
}

func (h *SessionHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeEnvelope(w, h.manager.VerifyEmail(r.Context(), req.Token))
}
