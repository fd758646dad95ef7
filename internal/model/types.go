package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account. PasswordHash is a bcrypt digest;
// plaintext passwords never leave the handler layer.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Geolocation is the result of resolving an IP address. Every field is
// optional: a nil pointer means the resolver could not determine the value,
// and risk rules that depend on it are skipped rather than scored.
type Geolocation struct {
	Country   *string
	City      *string
	ISP       *string
	Latitude  *float64
	Longitude *float64
}

// HasCoordinates reports whether both latitude and longitude are known.
func (g Geolocation) HasCoordinates() bool {
	return g.Latitude != nil && g.Longitude != nil
}

// KnownLocation is a previously approved login location for a username.
// Entries are append-only and deduplicated by IP alone: the same IP showing
// up again is the marker of "already trusted", regardless of what the
// resolver reported for it this time.
type KnownLocation struct {
	Username   string
	IP         string
	Country    *string
	City       *string
	ISP        *string
	Latitude   *float64
	Longitude  *float64
	ObservedAt time.Time
}

// SessionStatus is the externally visible state of an approval session.
type SessionStatus string

const (
	StatusPending  SessionStatus = "pending"
	StatusVerified SessionStatus = "verified"
)

// Session is a time-bounded out-of-band approval handle. Verified is
// monotonic: once true it is never reset. A session past its TTL is
// unreachable from every lifecycle operation.
type Session struct {
	Token      string    `json:"token"`
	Username   string    `json:"username"`
	IP         string    `json:"ip"`
	Verified   bool      `json:"verified"`
	CreatedAt  time.Time `json:"created_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// ExpiresAt returns the instant after which the session is unreachable.
func (s Session) ExpiresAt() time.Time {
	return s.CreatedAt.Add(time.Duration(s.TTLSeconds) * time.Second)
}

// Expired reports whether the session TTL has elapsed at the given instant.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt())
}

// AuditEntry records one scored login attempt. Entries are append-only;
// newest-first ordering is applied at read time for display.
type AuditEntry struct {
	ID        uuid.UUID
	Username  string
	IP        string
	Score     int
	Reasons   []string
	Geo       Geolocation
	CreatedAt time.Time
}
