package repo

import "errors"

var (
	// ErrUserNotFound is returned when a username has no account.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when signup hits an existing username.
	ErrUserExists = errors.New("user already exists")
)
