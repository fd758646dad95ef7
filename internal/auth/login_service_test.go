package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskguard/server/internal/geo"
	"github.com/riskguard/server/internal/model"
	"github.com/riskguard/server/internal/repo"
	"github.com/riskguard/server/internal/risk"
	"github.com/riskguard/server/internal/session"
)

const (
	testIP    = "203.0.113.10"
	testUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	testBadIP = "123.45.67.89"
)

// loginFixture wires a LoginService over in-memory stores with a fixed
// daytime clock, so only the inputs under test move the score.
type loginFixture struct {
	svc       *LoginService
	users     *repo.MemoryUserRepo
	locations *repo.MemoryLocationRepo
	attempts  *repo.MemoryAttemptRepo
	audit     *repo.MemoryAuditRepo
}

func newLoginFixture(t *testing.T, privileged session.PrivilegedFunc) *loginFixture {
	t.Helper()

	noon := func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	country := "Germany"
	city := "Berlin"
	isp := "Deutsche Telekom"
	resolver := geo.NewStatic(map[string]model.Geolocation{
		testIP:    {Country: &country, City: &city, ISP: &isp},
		testBadIP: {Country: &country, City: &city, ISP: &isp},
	})

	f := &loginFixture{
		users:     repo.NewMemoryUserRepo(),
		locations: repo.NewMemoryLocationRepo(),
		attempts:  repo.NewMemoryAttemptRepo(),
		audit:     repo.NewMemoryAuditRepo(),
	}
	engine := risk.NewEngine(resolver, nil, noon)
	lifecycle := session.NewLifecycle(session.NewMemoryStore(nil), resolver, f.locations, privileged, nil)
	jwtService := NewJWTService("test-secret-at-least-32-characters!!", time.Minute)

	f.svc = NewLoginService(
		f.users, f.locations, f.attempts, f.audit,
		engine, lifecycle, jwtService, risk.DefaultThresholds, 60,
	)
	return f
}

func (f *loginFixture) signUp(t *testing.T, username, password string) {
	t.Helper()
	_, err := f.svc.SignUp(context.Background(), username, password)
	require.NoError(t, err)
}

func TestSignUp_duplicateUsername(t *testing.T) {
	f := newLoginFixture(t, nil)
	f.signUp(t, "alice", "hunter2")

	_, err := f.svc.SignUp(context.Background(), "alice", "other")
	assert.ErrorIs(t, err, repo.ErrUserExists)
}

func TestLogin_invalidCredentials(t *testing.T) {
	f := newLoginFixture(t, nil)
	f.signUp(t, "alice", "hunter2")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "alice", "wrong", testIP, testUA)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "ghost", "whatever", testIP, testUA)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "unknown user must look like a wrong password")

	count, err := f.attempts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = f.attempts.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "failures are tracked even for unknown usernames")
}

func TestLogin_firstTimeAdmitIssuesAccessToken(t *testing.T) {
	f := newLoginFixture(t, nil)
	f.signUp(t, "alice", "hunter2")
	ctx := context.Background()

	result, err := f.svc.Login(ctx, "alice", "hunter2", testIP, testUA)
	require.NoError(t, err)

	assert.Equal(t, risk.DecisionAdmit, result.Decision)
	assert.Equal(t, 20, result.Score)
	assert.Equal(t, []string{"First-time login from any location"}, result.Reasons)
	assert.NotEmpty(t, result.Token)
	assert.NotEmpty(t, result.AccessToken, "admitted login needs no out-of-band step")

	// The admit recorded the location, so a second login is fully trusted.
	result, err = f.svc.Login(ctx, "alice", "hunter2", testIP, testUA)
	require.NoError(t, err)
	assert.Zero(t, result.Score)
	assert.Empty(t, result.Reasons)
}

func TestLogin_scoresWithPreResetStreakAndResetsAfter(t *testing.T) {
	f := newLoginFixture(t, nil)
	f.signUp(t, "alice", "hunter2")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(ctx, "alice", "wrong", testIP, testUA)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	result, err := f.svc.Login(ctx, "alice", "hunter2", testIP, testUA)
	require.NoError(t, err)

	// Two failures stay under the threshold: no failed-attempts reason.
	assert.NotContains(t, result.Reasons, "Multiple failed login attempts")
	assert.Equal(t, 20, result.Score)

	count, err := f.attempts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count, "counter resets once the password checks out")
}

func TestLogin_failureStreakForcesApproval(t *testing.T) {
	f := newLoginFixture(t, nil)
	f.signUp(t, "alice", "hunter2")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, "alice", "wrong", testIP, testUA)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	result, err := f.svc.Login(ctx, "alice", "hunter2", testIP, testUA)
	require.NoError(t, err)

	assert.Equal(t, risk.DecisionApprove, result.Decision)
	assert.Equal(t, 60, result.Score, "first-time +20 plus failed attempts +40")
	assert.NotEmpty(t, result.Token)
	assert.Empty(t, result.AccessToken, "approval-required login must wait for the second device")

	status, err := f.svc.CheckStatus(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status.Status)
	assert.Empty(t, status.AccessToken)

	require.NoError(t, f.svc.Approve(ctx, result.Token))

	status, err = f.svc.CheckStatus(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, status.Status)
	assert.NotEmpty(t, status.AccessToken)

	history, err := f.locations.ListByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLogin_suspiciousIPBlocked(t *testing.T) {
	f := newLoginFixture(t, nil)
	f.signUp(t, "alice", "hunter2")
	ctx := context.Background()

	result, err := f.svc.Login(ctx, "alice", "hunter2", testBadIP, testUA)
	require.NoError(t, err)

	assert.Equal(t, risk.DecisionBlock, result.Decision)
	assert.GreaterOrEqual(t, result.Score, 80)
	assert.Contains(t, result.Reasons, "IP flagged as suspicious/malicious")
	assert.Empty(t, result.Token, "blocked attempt gets no approval session")
	assert.Empty(t, result.AccessToken)

	// The blocked attempt is still audited.
	entries, err := f.audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, result.Score, entries[0].Score)
}

func TestLogin_privilegedIdentitySkipsApproval(t *testing.T) {
	isAdmin := func(username string) bool { return username == "admin" }
	f := newLoginFixture(t, isAdmin)
	f.signUp(t, "admin", "hunter2")
	ctx := context.Background()

	// Push the score into the approval band first.
	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, "admin", "wrong", testIP, testUA)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	result, err := f.svc.Login(ctx, "admin", "hunter2", testIP, testUA)
	require.NoError(t, err)

	assert.Equal(t, risk.DecisionApprove, result.Decision)
	assert.NotEmpty(t, result.AccessToken, "privileged identity is never held at the approval step")

	status, err := f.svc.CheckStatus(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, status.Status)
}

func TestLogin_auditTrailNewestFirst(t *testing.T) {
	f := newLoginFixture(t, nil)
	f.signUp(t, "alice", "hunter2")
	f.signUp(t, "bob", "hunter2")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "alice", "hunter2", testIP, testUA)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.Login(ctx, "bob", "hunter2", testIP, testUA)
	require.NoError(t, err)

	entries, err := f.audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].Username, "most recent attempt first")
	assert.Equal(t, "alice", entries[1].Username)
}

func TestLogin_concurrentFailuresKeepEveryIncrement(t *testing.T) {
	f := newLoginFixture(t, nil)
	f.signUp(t, "alice", "hunter2")
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Login(ctx, "alice", "wrong", testIP, testUA)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		}()
	}
	wg.Wait()

	count, err := f.attempts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, n, count, "no failed-attempt increment may be lost")
}
