package identity

import "errors"

var (
	// ErrValidation indicates missing or malformed credentials input.
	ErrValidation = errors.New("validation failed")
	// ErrEmailTaken indicates a registration for an email already in use.
	ErrEmailTaken = errors.New("a user with this email already exists")
	// ErrUnauthorized covers bad credentials and bad or expired tokens.
	ErrUnauthorized = errors.New("not authorized")
	// ErrNotFound indicates the user no longer exists.
	ErrNotFound = errors.New("user not found")
	// ErrDatabase indicates a database-related failure.
	ErrDatabase = errors.New("database error")
)
