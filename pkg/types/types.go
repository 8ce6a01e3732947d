package types

import (
	"encoding/json"
	"time"
)

// Relay event kinds carried over the WebSocket as wire strings.
// These are fixed by the browser client protocol and must not be renamed.
const (
	EventCodeChange     = "code-change"
	EventCursorMove     = "cursor-move"
	EventFileCreate     = "file-create"
	EventFileDelete     = "file-delete"
	EventChatMessage    = "chat-message"
	EventSessionJoin    = "session-join"
	EventSessionLeave   = "session-leave"
	EventTerminalOutput = "terminal-output"
	EventTerminalInput  = "terminal-input"
)

// Session status values persisted in the sessions table.
const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// Event is the uniform envelope exchanged over the relay socket.
// Payload stays opaque to the relay; it is decoded only when a storage
// side effect needs fields out of it. Field names match the client wire
// format (camelCase) and must stay stable.
type Event struct {
	Kind      string          `json:"kind"`
	SessionID int64           `json:"sessionId"`
	SenderID  int64           `json:"senderId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CodeChangePayload carries an edited file's new content.
type CodeChangePayload struct {
	FileID  int64  `json:"fileId"`
	Content string `json:"content"`
}

// FileCreatePayload carries a newly created file.
type FileCreatePayload struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// FileDeletePayload identifies a file removed from the session.
type FileDeletePayload struct {
	FileID int64 `json:"fileId"`
}

// CursorMovePayload carries a participant's cursor position.
type CursorMovePayload struct {
	FileID int64 `json:"fileId"`
	Line   int   `json:"line"`
	Column int   `json:"column"`
}

// ChatPayload carries a chat message with the client's own timestamp.
type ChatPayload struct {
	Text   string `json:"text"`
	SentAt string `json:"sentAt"`
}

// TerminalPayload carries shared terminal transcript text, used by both
// terminal-output and terminal-input events.
type TerminalPayload struct {
	Text string `json:"text"`
}

// User represents a registered account. PasswordHash never serializes.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Online       bool      `json:"online"`
	Skills       []string  `json:"skills,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Skill is a named competency users attach to their profile.
type Skill struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Session is a collaborative coding room. The schema allows one creator
// and at most one partner; the relay's live membership is tracked
// separately and is not derived from these two columns.
type Session struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CreatorID int64      `json:"creator_id"`
	PartnerID *int64     `json:"partner_id,omitempty"`
	Language  string     `json:"language"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// File is a shared editor buffer belonging to a session. Content is the
// full current text; concurrent edits are last-write-wins.
type File struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Name      string    `json:"name"`
	Language  string    `json:"language"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Feedback is a post-session rating left by one participant.
type Feedback struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	AuthorID  int64     `json:"author_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is the persisted copy of a chat-message relay event,
// kept for session history replay through the HTTP API.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID int64     `json:"session_id"`
	SenderID  int64     `json:"sender_id"`
	Text      string    `json:"text"`
	SentAt    string    `json:"sent_at"`
	StoredAt  time.Time `json:"stored_at"`
}
