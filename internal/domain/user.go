package domain

import (
	"encoding/json"
	"fmt"
)

// User is the authenticated principal as returned by the backend.
type User struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	FullName  string  `json:"fullName,omitempty"`
	Role      string  `json:"role,omitempty"`
	AccountID string  `json:"accountId,omitempty"`
	IsActive  bool    `json:"isActive"`
	LastLogin *string `json:"lastLogin,omitempty"`
	CreatedAt string  `json:"createdAt,omitempty"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	if u.LastLogin != nil {
		v := *u.LastLogin
		u.LastLogin = &v
	}
	return u
}

// Merge shallow-merges fields (keyed by their JSON names) into a copy of u.
func (u User) Merge(fields map[string]any) (User, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return u, fmt.Errorf("failed to encode user: %w", err)
	}

	merged := make(map[string]any)
	if err := json.Unmarshal(raw, &merged); err != nil {
		return u, fmt.Errorf("failed to decode user: %w", err)
	}
	for k, v := range fields {
		merged[k] = v
	}

	raw, err = json.Marshal(merged)
	if err != nil {
		return u, fmt.Errorf("failed to encode merged user: %w", err)
	}

	var out User
	if err := json.Unmarshal(raw, &out); err != nil {
		return u, fmt.Errorf("failed to apply user fields: %w", err)
	}
	return out, nil
}
