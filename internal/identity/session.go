// Package identity resolves who is calling. Authentication itself is owned by
// the hosted identity service; this package verifies its tokens and relays
// sign-in flows to it.
package identity

import (
	"context"
	"errors"
	"time"

	"task-calendar/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrNoSession    = errors.New("no active session")
)

type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         models.User `json:"user"`
}

type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (*Session, error)
}
