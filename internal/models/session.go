package models

import "time"

// Session is a persisted login credential. The row's ExpiresAt is the source
// of truth for revocation, independent of the expiry claim baked into the
// signed token.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	UserID int64
}
