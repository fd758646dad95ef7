package geo

import (
	"context"

	"github.com/riskguard/server/internal/model"
)

// Resolver maps an IP address to a geolocation. Implementations must never
// return an error for a failed or partial lookup: missing data degrades to
// nil fields in the result so risk rules can skip, not score, the gap.
type Resolver interface {
	Lookup(ctx context.Context, ip string) model.Geolocation
}
