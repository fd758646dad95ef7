package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riskguard/server/internal/model"
)

// LocationRepo defines the interface for the per-username known-location
// history. The list is append-only and ordered by observation time.
type LocationRepo interface {
	// ListByUsername returns the history oldest-first; an empty slice means
	// the user has never completed an approved login.
	ListByUsername(ctx context.Context, username string) ([]model.KnownLocation, error)

	// AppendIfNewIP records the location unless an entry with the same IP
	// already exists for the username. The check-and-insert is atomic.
	AppendIfNewIP(ctx context.Context, loc model.KnownLocation) error
}

type locationRepo struct {
	db *sql.DB
}

// NewLocationRepo creates a new LocationRepo instance backed by Postgres.
func NewLocationRepo(db *sql.DB) LocationRepo {
	return &locationRepo{db: db}
}

// ListByUsername returns the stored history oldest-first, so the last
// element is the most recently appended location.
func (r *locationRepo) ListByUsername(ctx context.Context, username string) ([]model.KnownLocation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT username, ip, country, city, isp, latitude, longitude, observed_at
		FROM known_locations
		WHERE username = $1
		ORDER BY observed_at ASC, id ASC
	`, username)
	if err != nil {
		return nil, fmt.Errorf("query known locations: %w", err)
	}
	defer rows.Close()

	var locations []model.KnownLocation
	for rows.Next() {
		var loc model.KnownLocation
		if err := rows.Scan(
			&loc.Username,
			&loc.IP,
			&loc.Country,
			&loc.City,
			&loc.ISP,
			&loc.Latitude,
			&loc.Longitude,
			&loc.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("scan known location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known locations: %w", err)
	}
	return locations, nil
}

// AppendIfNewIP inserts the location; the unique index on (username, ip)
// makes the duplicate check race-free in a single statement.
func (r *locationRepo) AppendIfNewIP(ctx context.Context, loc model.KnownLocation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO known_locations (username, ip, country, city, isp, latitude, longitude, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (username, ip) DO NOTHING
	`, loc.Username, loc.IP, loc.Country, loc.City, loc.ISP, loc.Latitude, loc.Longitude, loc.ObservedAt)
	if err != nil {
		return fmt.Errorf("insert known location: %w", err)
	}
	return nil
}
