package identity

import "errors"

var (
	errUserIDEmpty  = errors.New("user id cannot be empty")
	errEmailEmpty   = errors.New("email is required")
	errUserExists   = errors.New("user already exists")
	errProviderInfo = errors.New("oauth provider and provider id are required")

	errSessionIDRequired        = errors.New("session id is required")
	errSessionUserIDRequired    = errors.New("session user_id is required")
	errSessionTokenHashRequired = errors.New("session token_hash is required")

	// ErrUserNotFound is returned when no user matches a lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionQuotaExceeded is returned when a user has too many active sessions.
	ErrSessionQuotaExceeded = errors.New("maximum number of active sessions exceeded")
)
