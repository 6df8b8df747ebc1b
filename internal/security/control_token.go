package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// ControlTokenFile is written to the state directory when the agent
// generates its own control API token.
const ControlTokenFile = "control.token"

// GenerateControlToken returns 32 random bytes as a 64-character hex string.
func GenerateControlToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate control token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// TokenMatches compares a presented token against the expected one in
// constant time. An empty expected token never matches.
func TokenMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// WriteControlToken stores token in dir/control.token readable only by the owner.
func WriteControlToken(dir, token string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create state dir: %w", err)
	}
	path := filepath.Join(dir, ControlTokenFile)
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write control token: %w", err)
	}
	return path, nil
}
