package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/riskguard/server/internal/geo"
	"github.com/riskguard/server/internal/model"
)

// tokenBytes gives 128 bits of entropy per token.
const tokenBytes = 16

// maxCreateAttempts bounds collision retries; with 128-bit tokens more than
// one attempt is already astronomically unlikely.
const maxCreateAttempts = 5

// LocationAppender records an approved login location. Append is atomic per
// username and deduplicates by IP alone.
type LocationAppender interface {
	AppendIfNewIP(ctx context.Context, loc model.KnownLocation) error
}

// PrivilegedFunc reports whether a username belongs to a privileged operator
// who must never be blocked behind a second factor.
type PrivilegedFunc func(username string) bool

// Lifecycle manages approval sessions: creation, verification, status and
// expiry. On the first successful approval it resolves the session IP and
// records it as a known location for the user.
type Lifecycle struct {
	store      Store
	resolver   geo.Resolver
	locations  LocationAppender
	privileged PrivilegedFunc
	now        func() time.Time
}

// NewLifecycle wires a lifecycle manager. privileged may be nil (nothing is
// privileged); now may be nil (wall clock).
func NewLifecycle(store Store, resolver geo.Resolver, locations LocationAppender, privileged PrivilegedFunc, now func() time.Time) *Lifecycle {
	if privileged == nil {
		privileged = func(string) bool { return false }
	}
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		store:      store,
		resolver:   resolver,
		locations:  locations,
		privileged: privileged,
		now:        now,
	}
}

// Create issues a fresh approval token for the attempt. Privileged
// identities get a session that is born verified, so the operator is never
// held at the approval step.
func (l *Lifecycle) Create(ctx context.Context, username, ip string, ttlSeconds int) (string, error) {
	if ttlSeconds <= 0 {
		return "", fmt.Errorf("session ttl must be positive, got %d", ttlSeconds)
	}

	s := model.Session{
		Username:   username,
		IP:         ip,
		Verified:   l.privileged(username),
		CreatedAt:  l.now(),
		TTLSeconds: ttlSeconds,
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		token, err := newToken()
		if err != nil {
			return "", fmt.Errorf("generate session token: %w", err)
		}
		s.Token = token

		err = l.store.Create(ctx, s)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrTokenExists) {
			return "", fmt.Errorf("create session: %w", err)
		}
	}
	return "", fmt.Errorf("create session: token collision after %d attempts", maxCreateAttempts)
}

// Approve transitions the session to verified. It is idempotent: approving
// an already-verified session succeeds without side effects. Only the call
// that performs the transition appends the resolved location, so concurrent
// approvals cannot double-record it.
func (l *Lifecycle) Approve(ctx context.Context, token string) error {
	s, first, err := l.store.Verify(ctx, token)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	g := l.resolver.Lookup(ctx, s.IP)
	loc := model.KnownLocation{
		Username:   s.Username,
		IP:         s.IP,
		Country:    g.Country,
		City:       g.City,
		ISP:        g.ISP,
		Latitude:   g.Latitude,
		Longitude:  g.Longitude,
		ObservedAt: l.now(),
	}
	if err := l.locations.AppendIfNewIP(ctx, loc); err != nil {
		return fmt.Errorf("record approved location: %w", err)
	}
	return nil
}

// Status reports whether the session is still awaiting approval. Unknown
// and expired tokens both surface as ErrNotFound, never as pending.
func (l *Lifecycle) Status(ctx context.Context, token string) (model.SessionStatus, error) {
	s, err := l.store.Get(ctx, token)
	if err != nil {
		return "", err
	}
	if s.Verified {
		return model.StatusVerified, nil
	}
	return model.StatusPending, nil
}

// Session returns the live session for a token.
func (l *Lifecycle) Session(ctx context.Context, token string) (model.Session, error) {
	return l.store.Get(ctx, token)
}

// SweepExpired removes sessions past their TTL.
func (l *Lifecycle) SweepExpired(ctx context.Context) error {
	return l.store.SweepExpired(ctx)
}

// RunSweeper sweeps on the given interval until ctx is cancelled. Store
// reads already enforce expiry lazily; the sweeper just reclaims memory for
// tokens nobody polls again.
func (l *Lifecycle) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = l.SweepExpired(ctx)
		}
	}
}

// newToken returns a hex-encoded 128-bit random token.
func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
