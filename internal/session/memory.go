package session

import (
	"context"
	"sync"
	"time"

	"github.com/kdimtricp/pairjudge/internal/judgment"
)

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Sessions are lost on restart.
type MemoryStore struct {
	ttl        time.Duration
	now        func() time.Time
	sessions   map[string]memoryEntry
	sessionsMu sync.RWMutex
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memoryEntry),
	}
}

func (m *MemoryStore) Create(_ context.Context, userID string, state *judgment.SessionState) (*Session, error) {
	s := newSession(userID, state)

	m.sessionsMu.Lock()
	m.sessions[s.Token] = memoryEntry{session: s, expiresAt: m.now().Add(m.ttl)}
	m.sessionsMu.Unlock()

	return cloneSession(s), nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	m.sessionsMu.RLock()
	entry, exists := m.sessions[token]
	m.sessionsMu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	if m.ttl > 0 && m.now().After(entry.expiresAt) {
		m.sessionsMu.Lock()
		delete(m.sessions, token)
		m.sessionsMu.Unlock()
		return nil, ErrNotFound
	}
	return cloneSession(entry.session), nil
}

// Save stores s and extends its expiry.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()

	if _, exists := m.sessions[s.Token]; !exists {
		return ErrNotFound
	}
	m.sessions[s.Token] = memoryEntry{session: cloneSession(s), expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.sessionsMu.Lock()
	delete(m.sessions, token)
	m.sessionsMu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
