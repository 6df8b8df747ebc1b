package domain

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrInvalidTheme = errors.New("invalid theme configuration")

var hexColorRegex = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ThemeConfig is persisted next to the session under KeyThemeStorage.
type ThemeConfig struct {
	Mode         string `json:"mode"`
	PrimaryColor string `json:"primaryColor"`
	AccentColor  string `json:"accentColor"`
	BorderRadius string `json:"borderRadius"`
	CompactMode  bool   `json:"compactMode"`
}

// DefaultTheme returns the theme used when nothing is persisted.
func DefaultTheme() ThemeConfig {
	return ThemeConfig{
		Mode:         "system",
		PrimaryColor: "#0ea5e9",
		AccentColor:  "#8b5cf6",
		BorderRadius: "medium",
		CompactMode:  false,
	}
}

// Validate checks enumerated fields and colour formats.
func (t ThemeConfig) Validate() error {
	switch t.Mode {
	case "light", "dark", "system":
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidTheme, t.Mode)
	}
	switch t.BorderRadius {
	case "none", "small", "medium", "large":
	default:
		return fmt.Errorf("%w: borderRadius %q", ErrInvalidTheme, t.BorderRadius)
	}
	if !hexColorRegex.MatchString(t.PrimaryColor) {
		return fmt.Errorf("%w: primaryColor %q", ErrInvalidTheme, t.PrimaryColor)
	}
	if !hexColorRegex.MatchString(t.AccentColor) {
		return fmt.Errorf("%w: accentColor %q", ErrInvalidTheme, t.AccentColor)
	}
	return nil
}
