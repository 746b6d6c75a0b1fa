package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore persists identity values (session id, conversation id,
// submission flags) in Redis. Keys are optionally namespaced per device and
// refreshed with ttl on every write; a zero ttl keeps them forever.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Namespace returns a store sharing the client whose keys start with prefix.
func (s *SessionStore) Namespace(prefix string) *SessionStore {
	return &SessionStore{client: s.client, prefix: s.prefix + prefix, ttl: s.ttl}
}

func (s *SessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SessionStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

func (s *SessionStore) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *SessionStore) key(key string) string {
	return s.prefix + key
}
