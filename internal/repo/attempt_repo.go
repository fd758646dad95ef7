package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AttemptRepo defines the interface for the per-username failed-password
// counter. Increment and Reset are atomic per username; concurrent failures
// must never lose an update.
type AttemptRepo interface {
	Get(ctx context.Context, username string) (int, error)
	Increment(ctx context.Context, username string) (int, error)
	Reset(ctx context.Context, username string) error
}

type attemptRepo struct {
	db *sql.DB
}

// NewAttemptRepo creates a new AttemptRepo instance backed by Postgres.
func NewAttemptRepo(db *sql.DB) AttemptRepo {
	return &attemptRepo{db: db}
}

// Get returns the current count; a username with no row has zero failures.
func (r *attemptRepo) Get(ctx context.Context, username string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT count FROM failed_attempts WHERE username = $1
	`, username).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query failed attempts: %w", err)
	}
	return count, nil
}

// Increment bumps the counter in a single upsert and returns the new value.
func (r *attemptRepo) Increment(ctx context.Context, username string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO failed_attempts (username, count)
		VALUES ($1, 1)
		ON CONFLICT (username) DO UPDATE
		SET count = failed_attempts.count + 1, updated_at = now()
		RETURNING count
	`, username).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}
	return count, nil
}

// Reset zeroes the counter. Resetting an absent row is not an error.
func (r *attemptRepo) Reset(ctx context.Context, username string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE failed_attempts SET count = 0, updated_at = now() WHERE username = $1
	`, username)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}
