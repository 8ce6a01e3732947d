package session

import "errors"

// Session management error types
var (
	ErrInvalidSessionName  = errors.New("session name must be 1-200 characters")
	ErrInvalidCreator      = errors.New("creator must be an existing user")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionEnded        = errors.New("session has ended")
	ErrSessionAlreadyEnded = errors.New("session is already ended")
	ErrSessionFull         = errors.New("session already has a partner")
	ErrSelfPartner         = errors.New("creator cannot join their own session as partner")
)
