package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/domain/entities"
	"github.com/satriahrh/scenery-voice/domain/repositories"
)

// SessionService hands out the persistent session identifier of this profile
type SessionService struct {
	repo   repositories.SessionRepository
	logger *zap.Logger

	mu     sync.Mutex
	cached string
}

// NewSessionService creates a new session service
func NewSessionService(repo repositories.SessionRepository, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, logger: logger}
}

// SessionID returns the stored identifier, generating and persisting a new
// one when the store holds none. While the store is unreadable the last
// identifier handed out keeps being returned.
func (s *SessionService) SessionID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.repo.Get(ctx)
	switch {
	case err == nil:
		session := entities.Session{ID: id}
		if verr := session.Validate(); verr != nil {
			s.logger.Warn("Stored session id is invalid, replacing it",
				zap.String("session_id", id),
				zap.Error(verr))
			return s.create(ctx)
		}
		s.cached = id
		return id, nil
	case errors.Is(err, repositories.ErrSessionNotFound):
		return s.create(ctx)
	case ctx.Err() != nil:
		return "", ctx.Err()
	case s.cached != "":
		s.logger.Warn("Failed to read session id, keeping the current session",
			zap.String("session_id", s.cached),
			zap.Error(err))
		return s.cached, nil
	default:
		s.logger.Warn("Failed to read session id, starting a new session", zap.Error(err))
		return s.create(ctx)
	}
}

// Reset forgets the current identifier and starts a new session
func (s *SessionService) Reset(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = ""
	if err := s.repo.Delete(ctx); err != nil {
		return "", fmt.Errorf("failed to delete session id: %w", err)
	}
	return s.create(ctx)
}

func (s *SessionService) create(ctx context.Context) (string, error) {
	session := entities.NewSession()
	if err := s.repo.Put(ctx, session.ID); err != nil {
		// still usable for this process; the next run starts another session
		s.logger.Warn("Failed to persist session id",
			zap.String("session_id", session.ID),
			zap.Error(err))
	} else {
		s.logger.Info("Created new session", zap.String("session_id", session.ID))
	}
	s.cached = session.ID
	return session.ID, nil
}
