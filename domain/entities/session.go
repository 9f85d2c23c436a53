package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionKey is the well-known key the session identifier is stored under.
const SessionKey = "scenery_session_id"

// Session ties every connection and request of one user's conversation together.
// The identifier is generated client-side once per profile and reused
// indefinitely; only the server may expire it.
type Session struct {
	ID        string    `json:"session_id" yaml:"session_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// NewSession creates a session with a freshly generated identifier
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session_id is required")
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		return errors.New("session_id must be a UUID")
	}
	return nil
}
