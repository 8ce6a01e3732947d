package types

import "errors"

// Validation errors shared across the relay and the HTTP API.
var (
	ErrInvalidEventKind   = errors.New("unknown event kind")
	ErrMissingSessionID   = errors.New("event is missing sessionId")
	ErrMissingSenderID    = errors.New("event is missing senderId")
	ErrMalformedEvent     = errors.New("event is not valid JSON")
	ErrInvalidUsername    = errors.New("username must be 1-50 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrInvalidSessionName = errors.New("session name must be 1-200 characters")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrInvalidFileName    = errors.New("file name must be 1-255 characters")
)
