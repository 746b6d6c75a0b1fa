// Package identity owns the session/conversation identifier pair for one
// client, cached in memory and backed by a durable key-value store.
package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"archetype-chat-service/internal/domain"
	"github.com/google/uuid"
)

// Keys under which the identifiers are persisted.
const (
	SessionKey      = "chat:session_id"
	ConversationKey = "chat:conversation_id"
)

// Store is the durable key-value backing (Redis, memory, ...).
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Manager serializes every operation on the pair, so a cache update and its
// durable write are never interleaved with another call.
type Manager struct {
	store Store
	now   func() time.Time

	mu             sync.Mutex
	sessionID      string
	hasSession     bool
	conversationID string
	hasConv        bool
	// generation advances every time the conversation id is cleared.
	generation uint64
}

func NewManager(store Store) *Manager {
	return NewManagerWithClock(store, time.Now)
}

// NewManagerWithClock allows deterministic session ids in tests.
func NewManagerWithClock(store Store, now func() time.Time) *Manager {
	return &Manager{store: store, now: now}
}

// StartNewSession generates and persists a fresh session id. Any conversation
// id is cleared first so it can never outlive the session it belonged to.
func (m *Manager) StartNewSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startSessionLocked(ctx)
}

// CurrentSessionID returns the active session id. ok is false when there is
// no session; it never creates one.
func (m *Manager) CurrentSessionID(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionLocked(ctx)
}

// EnsureSession returns the current session id, starting a session if none exists.
func (m *Manager) EnsureSession(ctx context.Context) (string, error) {
	if id, ok, err := m.CurrentSessionID(ctx); err != nil || ok {
		return id, err
	}
	return m.StartNewSession(ctx)
}

// Current returns the pair together with its generation, starting a session
// if none exists. Pass the generation to SetConversationIDIf when the remote
// reply that carries the conversation id arrives.
func (m *Manager) Current(ctx context.Context) (domain.SessionIdentity, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sid, ok, err := m.sessionLocked(ctx)
	if err != nil {
		return domain.SessionIdentity{}, 0, err
	}
	if !ok {
		if sid, err = m.startSessionLocked(ctx); err != nil {
			return domain.SessionIdentity{}, 0, err
		}
	}
	cid, _, err := m.conversationLocked(ctx)
	if err != nil {
		return domain.SessionIdentity{}, 0, err
	}
	return domain.SessionIdentity{SessionID: sid, ConversationID: cid}, m.generation, nil
}

// SetConversationIDIf records id only if no conversation or session reset
// happened since generation gen was observed. It reports whether id was stored.
func (m *Manager) SetConversationIDIf(ctx context.Context, gen uint64, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return false, nil
	}
	if err := m.store.Set(ctx, ConversationKey, id); err != nil {
		return false, fmt.Errorf("persist conversation id: %w", err)
	}
	m.conversationID, m.hasConv = id, true
	return true, nil
}

// SetConversationID records the id the remote service assigned to the dialogue.
func (m *Manager) SetConversationID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(ctx, ConversationKey, id); err != nil {
		return fmt.Errorf("persist conversation id: %w", err)
	}
	m.conversationID, m.hasConv = id, true
	return nil
}

func (m *Manager) ConversationID(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationLocked(ctx)
}

// Identity returns both identifiers in one consistent read.
func (m *Manager) Identity(ctx context.Context) (domain.SessionIdentity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sid, ok, err := m.sessionLocked(ctx)
	if err != nil || !ok {
		return domain.SessionIdentity{}, false, err
	}
	cid, _, err := m.conversationLocked(ctx)
	if err != nil {
		return domain.SessionIdentity{}, false, err
	}
	return domain.SessionIdentity{SessionID: sid, ConversationID: cid}, true, nil
}

// EndSession forgets both identifiers.
func (m *Manager) EndSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.clearConversationLocked(ctx); err != nil {
		return err
	}
	m.sessionID, m.hasSession = "", false
	if err := m.store.Remove(ctx, SessionKey); err != nil {
		return fmt.Errorf("remove session id: %w", err)
	}
	return nil
}

// EndConversationOnly starts a new topic within the same session.
func (m *Manager) EndConversationOnly(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearConversationLocked(ctx)
}

func (m *Manager) startSessionLocked(ctx context.Context) (string, error) {
	if err := m.clearConversationLocked(ctx); err != nil {
		return "", err
	}
	id := newSessionID(m.now())
	if err := m.store.Set(ctx, SessionKey, id); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	m.sessionID, m.hasSession = id, true
	return id, nil
}

func (m *Manager) sessionLocked(ctx context.Context) (string, bool, error) {
	if m.hasSession {
		return m.sessionID, true, nil
	}
	id, ok, err := m.store.Get(ctx, SessionKey)
	if err != nil {
		return "", false, fmt.Errorf("read session id: %w", err)
	}
	if ok {
		m.sessionID, m.hasSession = id, true
	}
	return id, ok, nil
}

func (m *Manager) conversationLocked(ctx context.Context) (string, bool, error) {
	if m.hasConv {
		return m.conversationID, true, nil
	}
	id, ok, err := m.store.Get(ctx, ConversationKey)
	if err != nil {
		return "", false, fmt.Errorf("read conversation id: %w", err)
	}
	if ok {
		m.conversationID, m.hasConv = id, true
	}
	return id, ok, nil
}

func (m *Manager) clearConversationLocked(ctx context.Context) error {
	m.generation++
	m.conversationID, m.hasConv = "", false
	if err := m.store.Remove(ctx, ConversationKey); err != nil {
		return fmt.Errorf("remove conversation id: %w", err)
	}
	return nil
}

// newSessionID concatenates a base36 millisecond timestamp with a random suffix.
// Unique with overwhelming probability, not cryptographically.
func newSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strconv.FormatInt(now.UnixMilli(), 36) + random[:12]
}
