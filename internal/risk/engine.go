package risk

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/riskguard/server/internal/geo"
	"github.com/riskguard/server/internal/model"
)

// Rule weights. Rules are additive and independent; no cap is applied, so a
// total above 100 is possible.
const (
	weightFirstLogin       = 20
	weightNewIP            = 15
	weightNewCity          = 20
	weightNewCountry       = 40
	weightNewISP           = 15
	weightImpossibleTravel = 50
	weightUnusualHours     = 10
	weightUnusualDevice    = 10
	weightFailedAttempts   = 40
	weightSuspiciousIP     = 80
)

const (
	// maxPlausibleSpeedKmh is the travel-speed ceiling; a required average
	// speed above it between two consecutive observed locations triggers the
	// impossible-travel rule.
	maxPlausibleSpeedKmh = 900.0

	// failedAttemptThreshold is the consecutive-failure count at which the
	// failed-attempts rule fires.
	failedAttemptThreshold = 3
)

// DefaultSuspiciousIPs is the static denylist seeded at startup when no
// override is configured.
var DefaultSuspiciousIPs = []string{"123.45.67.89", "66.66.66.66"}

// Input carries everything Evaluate needs about one login attempt. The
// caller supplies the location history and failure count; the engine only
// reads the clock and the geo resolver on top of that.
type Input struct {
	Username       string
	IP             string
	UserAgent      string
	FailedAttempts int
	History        []model.KnownLocation
}

// Assessment is the engine's verdict: an uncapped additive score, one reason
// per triggered rule in evaluation order, and the geolocation snapshot used,
// so callers can audit it without a second lookup.
type Assessment struct {
	Score   int
	Reasons []string
	Geo     model.Geolocation
}

// Engine scores login attempts. It is stateless apart from the injected
// resolver and clock and is safe for concurrent use.
type Engine struct {
	resolver      geo.Resolver
	suspiciousIPs map[string]struct{}
	now           func() time.Time
}

// NewEngine creates a risk engine. A nil suspiciousIPs slice selects
// DefaultSuspiciousIPs; now may be nil (wall clock).
func NewEngine(resolver geo.Resolver, suspiciousIPs []string, now func() time.Time) *Engine {
	if suspiciousIPs == nil {
		suspiciousIPs = DefaultSuspiciousIPs
	}
	set := make(map[string]struct{}, len(suspiciousIPs))
	for _, ip := range suspiciousIPs {
		set[ip] = struct{}{}
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{resolver: resolver, suspiciousIPs: set, now: now}
}

// Evaluate scores one attempt. All rules that apply contribute; there is no
// early exit. Geolocation-dependent rules are skipped whenever the needed
// field is missing from the current lookup or the compared history entry.
func (e *Engine) Evaluate(ctx context.Context, in Input) Assessment {
	var a Assessment
	a.Geo = e.resolver.Lookup(ctx, in.IP)
	now := e.now()

	// Location rules: first-time login is exclusive with the new-IP /
	// new-city / new-country / new-ISP comparisons.
	if len(in.History) == 0 {
		a.add(weightFirstLogin, "First-time login from any location")
	} else {
		if !historyHasIP(in.History, in.IP) {
			a.add(weightNewIP, "New IP address")
		}
		if a.Geo.City != nil && !historyHasCity(in.History, *a.Geo.City) {
			a.add(weightNewCity, "Login from new city")
		}
		if a.Geo.Country != nil && !historyHasCountry(in.History, *a.Geo.Country) {
			a.add(weightNewCountry, "Login from new country")
		}
		if a.Geo.ISP != nil && !historyHasISP(in.History, *a.Geo.ISP) {
			a.add(weightNewISP, "Unusual ISP detected (possible VPN)")
		}
		if kmh, ok := impossibleTravelSpeed(in.History[len(in.History)-1], a.Geo, now); ok {
			a.add(weightImpossibleTravel, fmt.Sprintf("Impossible travel detected: %d km/h required", kmh))
		}
	}

	if hour := now.Hour(); hour < 6 || hour > 23 {
		a.add(weightUnusualHours, "Login at unusual hours")
	}

	if unusualDevice(in.UserAgent) {
		a.add(weightUnusualDevice, "Unusual device/browser")
	}

	if in.FailedAttempts >= failedAttemptThreshold {
		a.add(weightFailedAttempts, "Multiple failed login attempts")
	}

	if _, bad := e.suspiciousIPs[in.IP]; bad {
		a.add(weightSuspiciousIP, "IP flagged as suspicious/malicious")
	}

	return a
}

func (a *Assessment) add(weight int, reason string) {
	a.Score += weight
	a.Reasons = append(a.Reasons, reason)
}

// unusualDevice reports whether the user agent is anything other than the
// common desktop-Windows profile (no "Mobile" marker, "Windows" present).
func unusualDevice(userAgent string) bool {
	common := !strings.Contains(userAgent, "Mobile") && strings.Contains(userAgent, "Windows")
	return !common
}

// impossibleTravelSpeed computes the average speed required to move from the
// most recently observed location to the current one. It returns false when
// either side lacks coordinates or no time has elapsed.
func impossibleTravelSpeed(last model.KnownLocation, cur model.Geolocation, now time.Time) (int, bool) {
	if last.Latitude == nil || last.Longitude == nil || !cur.HasCoordinates() {
		return 0, false
	}
	elapsedHours := now.Sub(last.ObservedAt).Hours()
	if elapsedHours <= 0 {
		return 0, false
	}
	distanceKm := haversineKm(*last.Latitude, *last.Longitude, *cur.Latitude, *cur.Longitude)
	speed := distanceKm / elapsedHours
	if speed <= maxPlausibleSpeedKmh {
		return 0, false
	}
	return int(math.Round(speed)), true
}

func historyHasIP(history []model.KnownLocation, ip string) bool {
	for _, loc := range history {
		if loc.IP == ip {
			return true
		}
	}
	return false
}

func historyHasCity(history []model.KnownLocation, city string) bool {
	for _, loc := range history {
		if loc.City != nil && *loc.City == city {
			return true
		}
	}
	return false
}

func historyHasCountry(history []model.KnownLocation, country string) bool {
	for _, loc := range history {
		if loc.Country != nil && *loc.Country == country {
			return true
		}
	}
	return false
}

func historyHasISP(history []model.KnownLocation, isp string) bool {
	for _, loc := range history {
		if loc.ISP != nil && *loc.ISP == isp {
			return true
		}
	}
	return false
}
