package memory

import (
	"context"
	"sync"
	"time"
)

// SessionStore is an in-memory durable-store stand-in for identity.Store.
// Values survive for the life of the process only. With a TTL, every Set
// refreshes the key's lifetime like the Redis store does, and expired keys
// are swept at most once per TTL so abandoned devices do not accumulate.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	values    map[string]entry
	lastSweep time.Time
}

type entry struct {
	value   string
	expires time.Time
}

// NewSessionStore keeps keys until they are removed.
func NewSessionStore() *SessionStore {
	return NewSessionStoreWithTTL(0, time.Now)
}

func NewSessionStoreWithTTL(ttl time.Duration, now func() time.Time) *SessionStore {
	return &SessionStore{
		ttl:       ttl,
		now:       now,
		values:    make(map[string]entry),
		lastSweep: now(),
	}
}

func (s *SessionStore) Get(_ context.Context, key string) (string, bool, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.values[key]
	if !ok || s.expired(e, now) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *SessionStore) Set(_ context.Context, key, value string) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{value: value}
	if s.ttl > 0 {
		e.expires = now.Add(s.ttl)
		s.sweepLocked(now)
	}
	s.values[key] = e
	return nil
}

func (s *SessionStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Len reports the number of keys held, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func (s *SessionStore) expired(e entry, now time.Time) bool {
	return s.ttl > 0 && !now.Before(e.expires)
}

func (s *SessionStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.ttl {
		return
	}
	for k, e := range s.values {
		if s.expired(e, now) {
			delete(s.values, k)
		}
	}
	s.lastSweep = now
}

// Namespace returns a view of the store whose keys are prefixed, so several
// devices can share one process-wide map.
func (s *SessionStore) Namespace(prefix string) *NamespacedStore {
	return &NamespacedStore{parent: s, prefix: prefix}
}

type NamespacedStore struct {
	parent *SessionStore
	prefix string
}

func (n *NamespacedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return n.parent.Get(ctx, n.prefix+key)
}

func (n *NamespacedStore) Set(ctx context.Context, key, value string) error {
	return n.parent.Set(ctx, n.prefix+key, value)
}

func (n *NamespacedStore) Remove(ctx context.Context, key string) error {
	return n.parent.Remove(ctx, n.prefix+key)
}
