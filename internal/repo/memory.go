package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskguard/server/internal/model"
)

// In-memory implementations of the repo interfaces. They back unit tests
// and single-process deployments; each store serializes its read-modify-
// write sequences under one mutex, which is enough to keep per-key updates
// atomic.

// MemoryUserRepo is an in-memory UserRepo.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[string]model.User
}

// NewMemoryUserRepo creates an empty in-memory user store.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]model.User)}
}

// Create registers a new account, failing with ErrUserExists on duplicates.
func (m *MemoryUserRepo) Create(_ context.Context, username string, passwordHash []byte) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[username]; ok {
		return model.User{}, ErrUserExists
	}
	user := model.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	m.users[username] = user
	return user, nil
}

// GetByUsername retrieves an account or ErrUserNotFound.
func (m *MemoryUserRepo) GetByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[username]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return user, nil
}

// MemoryLocationRepo is an in-memory LocationRepo.
type MemoryLocationRepo struct {
	mu      sync.Mutex
	history map[string][]model.KnownLocation
}

// NewMemoryLocationRepo creates an empty in-memory location history.
func NewMemoryLocationRepo() *MemoryLocationRepo {
	return &MemoryLocationRepo{history: make(map[string][]model.KnownLocation)}
}

// ListByUsername returns a copy of the history oldest-first.
func (m *MemoryLocationRepo) ListByUsername(_ context.Context, username string) ([]model.KnownLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.history[username]
	out := make([]model.KnownLocation, len(stored))
	copy(out, stored)
	return out, nil
}

// AppendIfNewIP appends unless the IP is already recorded for the user; the
// check and append happen under the same lock.
func (m *MemoryLocationRepo) AppendIfNewIP(_ context.Context, loc model.KnownLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.history[loc.Username] {
		if existing.IP == loc.IP {
			return nil
		}
	}
	m.history[loc.Username] = append(m.history[loc.Username], loc)
	return nil
}

// MemoryAttemptRepo is an in-memory AttemptRepo.
type MemoryAttemptRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryAttemptRepo creates an empty in-memory attempt counter.
func NewMemoryAttemptRepo() *MemoryAttemptRepo {
	return &MemoryAttemptRepo{counts: make(map[string]int)}
}

// Get returns the current count for the username.
func (m *MemoryAttemptRepo) Get(_ context.Context, username string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[username], nil
}

// Increment bumps and returns the counter atomically.
func (m *MemoryAttemptRepo) Increment(_ context.Context, username string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[username]++
	return m.counts[username], nil
}

// Reset zeroes the counter.
func (m *MemoryAttemptRepo) Reset(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[username] = 0
	return nil
}

// MemoryAuditRepo is an in-memory AuditRepo.
type MemoryAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

// NewMemoryAuditRepo creates an empty in-memory audit log.
func NewMemoryAuditRepo() *MemoryAuditRepo {
	return &MemoryAuditRepo{}
}

// Append records the entry, stamping ID and time if unset.
func (m *MemoryAuditRepo) Append(_ context.Context, entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, entry)
	return nil
}

// ListRecent returns up to limit entries newest-first.
func (m *MemoryAuditRepo) ListRecent(_ context.Context, limit int) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.AuditEntry, len(m.entries))
	copy(out, m.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
