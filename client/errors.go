package client

import "errors"

var (
	// ErrNoSession means the action requires an active session.
	ErrNoSession = errors.New("not signed in")
	// ErrNotAdmin means the action requires an admin session.
	ErrNotAdmin = errors.New("admin session required")
)
