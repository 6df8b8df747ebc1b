package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"payment-console/internal/domain"
	"payment-console/internal/observability"
)

// ThemeStore persists the UI theme. *persist.Store satisfies it.
type ThemeStore interface {
	LoadTheme(ctx context.Context) (domain.ThemeConfig, error)
	SaveTheme(ctx context.Context, theme domain.ThemeConfig) error
	ResetTheme(ctx context.Context) (domain.ThemeConfig, error)
}

type ThemeHandler struct {
	store ThemeStore
}

func NewThemeHandler(store ThemeStore) *ThemeHandler {
	return &ThemeHandler{store: store}
}

func (h *ThemeHandler) Get(w http.ResponseWriter, r *http.Request) {
	theme, err := h.store.LoadTheme(r.Context())
	if err != nil {
		h.fail(w, r, "failed to load theme", err)
		return
	}
	writeJSON(w, http.StatusOK, theme)
}

func (h *ThemeHandler) Save(w http.ResponseWriter, r *http.Request) {
	var theme domain.ThemeConfig
	if !decodeJSON(w, r, &theme) {
		return
	}

	if err := h.store.SaveTheme(r.Context(), theme); err != nil {
		if errors.Is(err, domain.ErrInvalidTheme) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.fail(w, r, "failed to save theme", err)
		return
	}
	writeJSON(w, http.StatusOK, theme)
}

func (h *ThemeHandler) Reset(w http.ResponseWriter, r *http.Request) {
	theme, err := h.store.ResetTheme(r.Context())
	if err != nil {
		h.fail(w, r, "failed to reset theme", err)
		return
	}
	writeJSON(w, http.StatusOK, theme)
}

func (h *ThemeHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	observability.FromContext(r.Context()).Error(msg, slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "Theme storage unavailable")
}
