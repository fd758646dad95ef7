package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskguard/server/internal/geo"
	"github.com/riskguard/server/internal/model"
)

// recordingAppender counts appends and applies IP-only dedup like the real
// location store.
type recordingAppender struct {
	mu       sync.Mutex
	appended []model.KnownLocation
}

func (r *recordingAppender) AppendIfNewIP(_ context.Context, loc model.KnownLocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.appended {
		if existing.Username == loc.Username && existing.IP == loc.IP {
			return nil
		}
	}
	r.appended = append(r.appended, loc)
	return nil
}

func (r *recordingAppender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appended)
}

func newTestLifecycle(t *testing.T, privileged PrivilegedFunc) (*Lifecycle, *recordingAppender, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	appender := &recordingAppender{}
	country := "Germany"
	resolver := geo.NewStatic(map[string]model.Geolocation{
		"203.0.113.10": {Country: &country},
	})
	l := NewLifecycle(NewMemoryStore(clock.Now), resolver, appender, privileged, clock.Now)
	return l, appender, clock
}

func TestLifecycle_createThenStatusPending(t *testing.T) {
	l, _, _ := newTestLifecycle(t, nil)
	ctx := context.Background()

	token, err := l.Create(ctx, "alice", "203.0.113.10", 60)
	require.NoError(t, err)
	assert.Len(t, token, 32, "token must be 16 random bytes hex-encoded")

	status, err := l.Status(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)
}

func TestLifecycle_approveThenStatusVerified(t *testing.T) {
	l, appender, _ := newTestLifecycle(t, nil)
	ctx := context.Background()

	token, err := l.Create(ctx, "alice", "203.0.113.10", 60)
	require.NoError(t, err)

	require.NoError(t, l.Approve(ctx, token))

	status, err := l.Status(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, status)

	require.Equal(t, 1, appender.count())
	loc := appender.appended[0]
	assert.Equal(t, "alice", loc.Username)
	assert.Equal(t, "203.0.113.10", loc.IP)
	require.NotNil(t, loc.Country)
	assert.Equal(t, "Germany", *loc.Country)
}

func TestLifecycle_approveIsIdempotent(t *testing.T) {
	l, appender, _ := newTestLifecycle(t, nil)
	ctx := context.Background()

	token, err := l.Create(ctx, "alice", "203.0.113.10", 60)
	require.NoError(t, err)

	require.NoError(t, l.Approve(ctx, token))
	require.NoError(t, l.Approve(ctx, token), "second approve must still succeed")
	assert.Equal(t, 1, appender.count(), "no duplicate location entries")
}

func TestLifecycle_expiredTokenUnreachable(t *testing.T) {
	l, _, clock := newTestLifecycle(t, nil)
	ctx := context.Background()

	token, err := l.Create(ctx, "alice", "203.0.113.10", 60)
	require.NoError(t, err)

	clock.Advance(61 * time.Second)

	_, err = l.Status(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, l.Approve(ctx, token), ErrNotFound)
}

func TestLifecycle_unknownToken(t *testing.T) {
	l, _, _ := newTestLifecycle(t, nil)
	ctx := context.Background()

	_, err := l.Status(ctx, "deadbeefdeadbeefdeadbeefdeadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, l.Approve(ctx, "deadbeefdeadbeefdeadbeefdeadbeef"), ErrNotFound)
}

func TestLifecycle_privilegedIdentityBornVerified(t *testing.T) {
	isAdmin := func(username string) bool { return username == "admin" }
	l, appender, _ := newTestLifecycle(t, isAdmin)
	ctx := context.Background()

	token, err := l.Create(ctx, "admin", "203.0.113.10", 60)
	require.NoError(t, err)

	status, err := l.Status(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, status)

	// Approving a born-verified session is a no-op, not an error.
	require.NoError(t, l.Approve(ctx, token))
	assert.Zero(t, appender.count(), "policy bypass must not record a location")
}

func TestLifecycle_rejectsNonPositiveTTL(t *testing.T) {
	l, _, _ := newTestLifecycle(t, nil)
	_, err := l.Create(context.Background(), "alice", "203.0.113.10", 0)
	assert.Error(t, err)
}

func TestLifecycle_concurrentCreatesUniqueTokens(t *testing.T) {
	l, _, _ := newTestLifecycle(t, nil)
	ctx := context.Background()

	const n = 64
	tokens := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := l.Create(ctx, "alice", "203.0.113.10", 60)
			assert.NoError(t, err)
			tokens <- token
		}()
	}
	wg.Wait()
	close(tokens)

	seen := make(map[string]struct{}, n)
	for token := range tokens {
		_, dup := seen[token]
		assert.False(t, dup, "duplicate token %s", token)
		seen[token] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestLifecycle_concurrentApprovalsAppendOnce(t *testing.T) {
	l, appender, _ := newTestLifecycle(t, nil)
	ctx := context.Background()

	token, err := l.Create(ctx, "alice", "203.0.113.10", 60)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Approve(ctx, token))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, appender.count())
}
