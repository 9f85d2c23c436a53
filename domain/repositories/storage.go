package repositories

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when no session identifier has been stored yet
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository persists the client's session identifier for one profile
type SessionRepository interface {
	Get(ctx context.Context) (string, error)
	Put(ctx context.Context, sessionID string) error
	Delete(ctx context.Context) error
}
