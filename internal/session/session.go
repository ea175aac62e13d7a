package session

import (
	"context"
	"errors"
	"time"
)

// Actor roles recognized by the API.
const (
	RoleTrader = "trader"
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
)

// ErrNotFound is returned when no session exists for a token.
var ErrNotFound = errors.New("session not found")

// Session is the pre-authenticated actor identity resolved from a bearer
// token. Login and token issuance live outside this service; the API only
// ever reads sessions.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store resolves bearer tokens to sessions.
type Store interface {
	Get(ctx context.Context, token string) (Session, error)
}
