package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/riskguard/server/internal/model"
)

// UserRepo defines the interface for user account operations.
type UserRepo interface {
	Create(ctx context.Context, username string, passwordHash []byte) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance backed by Postgres.
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

// Create inserts a new account. A duplicate username maps to ErrUserExists.
func (r *userRepo) Create(ctx context.Context, username string, passwordHash []byte) (model.User, error) {
	var user model.User
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, username, passwordHash).Scan(&idStr, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return model.User{}, ErrUserExists
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}

	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	user.Username = username
	user.PasswordHash = passwordHash
	return user, nil
}

// GetByUsername retrieves an account by username.
func (r *userRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	var user model.User
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&idStr, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("query user: %w", err)
	}

	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return user, nil
}
