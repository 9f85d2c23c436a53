package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/domain/entities"
	"github.com/satriahrh/scenery-voice/domain/repositories"
)

const profileFileName = "profile.json"

// FileStore keeps the session identifier in a small JSON profile file, the
// local analogue of browser storage. Other keys in the file are preserved.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore creates a store backed by path
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

// DefaultProfilePath returns <user config dir>/scenery-voice/profile.json
func DefaultProfilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, "scenery-voice", profileFileName), nil
}

// Path returns the profile file location
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.load()
	if err != nil {
		return "", err
	}
	id, _ := profile[entities.SessionKey].(string)
	if id == "" {
		return "", repositories.ErrSessionNotFound
	}
	return id, nil
}

func (s *FileStore) Put(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.load()
	if err != nil {
		// a corrupt profile is replaced rather than blocking the session
		s.logger.Warn("Discarding unreadable profile", zap.String("path", s.path), zap.Error(err))
		profile = map[string]interface{}{}
	}
	profile[entities.SessionKey] = sessionID
	return s.save(profile)
}

func (s *FileStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := profile[entities.SessionKey]; !ok {
		return nil
	}
	delete(profile, entities.SessionKey)
	return s.save(profile)
}

func (s *FileStore) load() (map[string]interface{}, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	profile := map[string]interface{}{}
	if len(data) == 0 {
		return profile, nil
	}
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", s.path, err)
	}
	return profile, nil
}

// save writes through a temp file and rename so a crash never leaves a torn profile
func (s *FileStore) save(profile map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profile-*.json")
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}
