package session

import (
	"context"
	"errors"

	"github.com/riskguard/server/internal/model"
)

// ErrNotFound is returned for a token that does not exist or whose TTL has
// elapsed. Expired and never-created are deliberately indistinguishable to
// callers; both mean the token is unreachable.
var ErrNotFound = errors.New("session not found")

// ErrTokenExists is returned when a token collides with a live session.
// Creation must fail rather than overwrite; the lifecycle retries with a
// fresh token.
var ErrTokenExists = errors.New("session token already exists")

// Store persists approval sessions keyed by token. Implementations must be
// safe for concurrent use and must never surface an expired session: expiry
// is enforced either lazily on read or by backend TTL, but no operation may
// observe a pending session past its TTL.
type Store interface {
	// Create stores a new session, failing with ErrTokenExists on collision.
	Create(ctx context.Context, s model.Session) error

	// Get returns the live session for the token, or ErrNotFound.
	Get(ctx context.Context, token string) (model.Session, error)

	// Verify atomically marks the session verified. It reports whether this
	// call performed the transition (false when already verified), or
	// ErrNotFound for an unknown or expired token.
	Verify(ctx context.Context, token string) (s model.Session, first bool, err error)

	// SweepExpired removes every session past its TTL. Backends with native
	// key expiry may make this a no-op.
	SweepExpired(ctx context.Context) error
}
