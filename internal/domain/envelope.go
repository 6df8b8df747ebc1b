package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Machine codes used for locally generated failure envelopes.
const (
	CodeNetworkError    = "NETWORK_ERROR"
	CodeUnexpectedError = "UNEXPECTED_ERROR"
)

var ErrNoData = errors.New("envelope has no data")

// Envelope is the uniform response wrapper returned by every backend call.
type Envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Error      *ErrorDetail    `json:"error"`
	Pagination *Pagination     `json:"pagination"`
	Metadata   map[string]any  `json:"metadata"`

	// StatusCode is the HTTP status the envelope arrived with, 0 for local failures.
	StatusCode int `json:"-"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	ErrorID   string            `json:"errorId"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Path      string            `json:"path"`
	Details   map[string]string `json:"details,omitempty"`
}

// Pagination accompanies list responses.
type Pagination struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// HasData reports whether the envelope carries a non-null payload.
func (e *Envelope) HasData() bool {
	if e == nil || len(e.Data) == 0 {
		return false
	}
	return string(e.Data) != "null"
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	if !e.HasData() {
		return ErrNoData
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode envelope data: %w", err)
	}
	return nil
}

// Code returns the machine error code, if any.
func (e *Envelope) Code() string {
	if e == nil || e.Error == nil {
		return ""
	}
	return e.Error.Code
}

// FailureMessage returns the most specific failure message, or fallback.
func (e *Envelope) FailureMessage(fallback string) string {
	if e == nil {
		return fallback
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return fallback
}
