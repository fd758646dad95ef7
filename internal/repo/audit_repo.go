package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/riskguard/server/internal/model"
)

// AuditRepo defines the interface for the append-only audit log of scored
// login attempts.
type AuditRepo interface {
	Append(ctx context.Context, entry model.AuditEntry) error

	// ListRecent returns up to limit entries, newest first. Ordering is a
	// read-time sort for display, not an insertion guarantee.
	ListRecent(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

type auditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates a new AuditRepo instance backed by Postgres.
func NewAuditRepo(db *sql.DB) AuditRepo {
	return &auditRepo{db: db}
}

// Append inserts one audit entry.
func (r *auditRepo) Append(ctx context.Context, entry model.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (username, ip, score, reasons, geo_country, geo_city, geo_isp, geo_latitude, geo_longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.Username,
		entry.IP,
		entry.Score,
		pq.Array(entry.Reasons),
		entry.Geo.Country,
		entry.Geo.City,
		entry.Geo.ISP,
		entry.Geo.Latitude,
		entry.Geo.Longitude,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first.
func (r *auditRepo) ListRecent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, ip, score, reasons, geo_country, geo_city, geo_isp, geo_latitude, geo_longitude, created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		var idStr string
		if err := rows.Scan(
			&idStr,
			&entry.Username,
			&entry.IP,
			&entry.Score,
			pq.Array(&entry.Reasons),
			&entry.Geo.Country,
			&entry.Geo.City,
			&entry.Geo.ISP,
			&entry.Geo.Latitude,
			&entry.Geo.Longitude,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse audit entry ID: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}
