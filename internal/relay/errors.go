package relay

import "errors"

// Relay error types
var (
	ErrNilConnection    = errors.New("connection cannot be nil")
	ErrIdentityMismatch = errors.New("event senderId does not match connection identity")
)
