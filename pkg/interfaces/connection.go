package interfaces

// Connection abstracts a live relay socket so the registry and dispatcher
// can be exercised with mock connections in tests.
type Connection interface {
	// WriteJSON sends a JSON-encoded message to the client (thread-safe).
	WriteJSON(v interface{}) error

	// WriteRaw sends an already-encoded frame verbatim (thread-safe).
	// Broadcast uses this so relayed envelopes reach peers byte-identical
	// to what the sender transmitted.
	WriteRaw(data []byte) error

	// Close tears down the connection and releases its resources.
	// Safe to call more than once.
	Close() error

	// ParticipantID returns the participant bound to this connection,
	// or 0 if no event has bound an identity yet.
	ParticipantID() int64

	// BindParticipant binds an identity to the connection. The first
	// inbound event establishes it for the connection's lifetime.
	BindParticipant(id int64)

	// SessionID returns the session this connection is joined to,
	// or 0 if it has not joined one.
	SessionID() int64

	// SetSessionID remembers the session joined through this connection.
	// A connection is associated with at most one session at a time.
	SetSessionID(id int64)

	// AuthUserID returns the identity proven at socket upgrade time.
	AuthUserID() int64
}
