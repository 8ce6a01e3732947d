package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("username already taken")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionAlreadyEnded = errors.New("session is already ended")
	ErrFileNotFound        = errors.New("file not found")
)
