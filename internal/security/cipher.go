package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sealed:v1:"
	keySize      = 32
	nonceSize    = 24
)

var (
	ErrInvalidSnapshotKey = errors.New("invalid snapshot key")
	ErrUnsealFailed       = errors.New("failed to unseal value")
)

var hkdfInfo = []byte("payment-console snapshot v1")

// SnapshotCipher seals persisted blobs with NaCl secretbox.
type SnapshotCipher struct {
	key [keySize]byte
}

// NewSnapshotCipher accepts a 32-byte key encoded as base64 or hex, or any
// passphrase of at least 32 characters, which is stretched with HKDF-SHA256.
func NewSnapshotCipher(rawKey string) (*SnapshotCipher, error) {
	key, err := deriveKey(rawKey)
	if err != nil {
		return nil, err
	}
	c := &SnapshotCipher{}
	copy(c.key[:], key)
	return c, nil
}

// Seal encrypts plain and returns a printable "sealed:v1:" value.
func (c *SnapshotCipher) Seal(plain string) (string, error) {
	if c == nil {
		return "", ErrInvalidSnapshotKey
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &c.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as-is so
// snapshots written before a key was configured still load.
func (c *SnapshotCipher) Open(value string) (string, error) {
	if c == nil {
		return "", ErrInvalidSnapshotKey
	}
	if !IsSealed(value) {
		return value, nil
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	if len(payload) <= nonceSize {
		return "", fmt.Errorf("%w: payload too short", ErrUnsealFailed)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], payload[:nonceSize])

	plain, ok := secretbox.Open(nil, payload[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrUnsealFailed
	}
	return string(plain), nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

func deriveKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrInvalidSnapshotKey
	}

	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil && len(decoded) == keySize {
		return decoded, nil
	}
	if decoded, err := hex.DecodeString(trimmed); err == nil && len(decoded) == keySize {
		return decoded, nil
	}

	if len(trimmed) < keySize {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrInvalidSnapshotKey, keySize)
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(trimmed), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive snapshot key: %w", err)
	}
	return key, nil
}
