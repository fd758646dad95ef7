package session

import (
	"context"
	"sync"
	"time"

	"github.com/riskguard/server/internal/model"
)

// MemoryStore keeps sessions in a mutex-guarded map. Expiry is enforced
// lazily on every read and by SweepExpired; an expired entry is deleted the
// first time anything touches it.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	now      func() time.Time
}

// NewMemoryStore creates an in-memory session store. now may be nil (wall
// clock); tests inject a fake clock to drive expiry.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]model.Session),
		now:      now,
	}
}

// Create stores the session unless a live one already holds the token.
func (m *MemoryStore) Create(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[s.Token]; ok {
		if !existing.Expired(m.now()) {
			return ErrTokenExists
		}
		// Expired holder: the slot is free again.
	}
	m.sessions[s.Token] = s
	return nil
}

// Get returns the session, deleting and reporting ErrNotFound if expired.
func (m *MemoryStore) Get(_ context.Context, token string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(token)
}

// Verify marks the session verified under the store lock, so two concurrent
// approvals cannot both observe the pre-verified state.
func (m *MemoryStore) Verify(_ context.Context, token string) (model.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getLocked(token)
	if err != nil {
		return model.Session{}, false, err
	}
	if s.Verified {
		return s, false, nil
	}
	s.Verified = true
	m.sessions[token] = s
	return s, true, nil
}

// SweepExpired removes every session past its TTL.
func (m *MemoryStore) SweepExpired(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for token, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, token)
		}
	}
	return nil
}

// getLocked is the shared expiry-aware read; callers hold m.mu.
func (m *MemoryStore) getLocked(token string) (model.Session, error) {
	s, ok := m.sessions[token]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	if s.Expired(m.now()) {
		delete(m.sessions, token)
		return model.Session{}, ErrNotFound
	}
	return s, nil
}
