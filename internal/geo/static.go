package geo

import (
	"context"

	"github.com/riskguard/server/internal/model"
)

// Static is a fixture-backed resolver for tests and dev mode: it answers
// from a fixed map and returns an empty Geolocation for unknown IPs.
type Static struct {
	byIP map[string]model.Geolocation
}

// NewStatic creates a resolver over the given fixtures. The map is not
// copied; callers must not mutate it afterwards.
func NewStatic(byIP map[string]model.Geolocation) *Static {
	if byIP == nil {
		byIP = map[string]model.Geolocation{}
	}
	return &Static{byIP: byIP}
}

// Lookup returns the fixture for the IP, or an all-nil Geolocation.
func (s *Static) Lookup(_ context.Context, ip string) model.Geolocation {
	return s.byIP[ip]
}
