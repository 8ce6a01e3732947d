package types

import (
	"encoding/json"
	"regexp"
)

// Regexes compiled once at package initialization.
var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ParseEvent decodes a raw socket frame into an Event and validates the
// required envelope fields. The payload is left undecoded; kind-specific
// decoding happens only where a storage side effect needs it.
func ParseEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, ErrMalformedEvent
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

// Validate checks the envelope's required fields. Payload contents are
// intentionally not validated here: the relay treats them as opaque.
func (e *Event) Validate() error {
	if !IsValidEventKind(e.Kind) {
		return ErrInvalidEventKind
	}
	if e.SessionID <= 0 {
		return ErrMissingSessionID
	}
	if e.SenderID <= 0 {
		return ErrMissingSenderID
	}
	return nil
}

// IsValidEventKind reports whether kind is one of the nine wire strings.
func IsValidEventKind(kind string) bool {
	switch kind {
	case EventCodeChange,
		EventCursorMove,
		EventFileCreate,
		EventFileDelete,
		EventChatMessage,
		EventSessionJoin,
		EventSessionLeave,
		EventTerminalOutput,
		EventTerminalInput:
		return true
	default:
		return false
	}
}

// Validate ensures the user record meets format requirements.
func (u *User) Validate() error {
	if !IsValidUsername(u.Username) {
		return ErrInvalidUsername
	}
	if !emailRegex.MatchString(u.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// Validate ensures the session record meets format requirements.
func (s *Session) Validate() error {
	if len(s.Name) < 1 || len(s.Name) > 200 {
		return ErrInvalidSessionName
	}
	return nil
}

// Validate ensures the feedback record meets format requirements.
func (f *Feedback) Validate() error {
	if f.Rating < 1 || f.Rating > 5 {
		return ErrInvalidRating
	}
	return nil
}

// IsValidUsername checks the 1-50 character, alphanumeric plus
// underscore/hyphen username format.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 50 {
		return false
	}
	return usernameRegex.MatchString(username)
}

// IsValidFileName bounds shared file names for storage and display.
func IsValidFileName(name string) bool {
	return len(name) >= 1 && len(name) <= 255
}
