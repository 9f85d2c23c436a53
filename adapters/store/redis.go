package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/satriahrh/scenery-voice/domain/repositories"
)

const defaultRedisPrefix = "scenery:session"

// RedisStore keeps the session identifier of one profile in Redis. Keys never
// expire; only the server side may retire a session.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	profile string
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix. Default is "scenery:session".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a store for profile
func NewRedisStore(client redis.UniversalClient, profile string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		prefix:  defaultRedisPrefix,
		profile: profile,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.profile == "" {
		s.profile = "default"
	}
	return s
}

func (s *RedisStore) key() string {
	return s.prefix + ":" + s.profile
}

func (s *RedisStore) Get(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repositories.ErrSessionNotFound
		}
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	if id == "" {
		return "", repositories.ErrSessionNotFound
	}
	return id, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID string) error {
	if err := s.client.Set(ctx, s.key(), sessionID, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
