package app

import "errors"

// Typed errors for the billing app layer. The router maps them onto HTTP
// statuses with errors.Is; nothing above this package inspects driver or
// SDK error types.
var (
	// ErrAuthenticity indicates a webhook whose signature did not verify.
	ErrAuthenticity = errors.New("invalid webhook signature")
	// ErrBadEvent indicates the incoming event payload is invalid or missing required fields.
	ErrBadEvent = errors.New("bad event")
	// ErrValidation indicates a rejected command input (unknown plan, missing field).
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the user or subscription the command targets does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the command clashes with the current subscription state.
	ErrConflict = errors.New("conflict")
	// ErrDatabase indicates a database-related failure.
	ErrDatabase = errors.New("database error")
	// ErrUpstream indicates a failure from the payment provider.
	ErrUpstream = errors.New("payment provider error")
)
