package models

import (
	"time"
)

// Principal represents an authenticated actor: a student (owner-scoped) or an
// administrator (global-scoped). IsAdmin is a server-side column on the
// principals table — it is never read from client-held state.
type Principal struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	APIKey     string     `json:"-"` // Never serialize
	IsAdmin    bool       `json:"is_admin"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// MaskedAPIKey returns first 8 characters of the API key for logging
func (p *Principal) MaskedAPIKey() string {
	if len(p.APIKey) < 8 {
		return "***"
	}
	return p.APIKey[:8] + "..."
}
