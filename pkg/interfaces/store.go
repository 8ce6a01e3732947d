package interfaces

import (
	"context"

	"codepair/pkg/types"
)

// Store is the single persistence interface consumed by the relay, the
// session manager and the HTTP API. Grouping all operations behind one
// interface keeps transaction handling and connection management in the
// database layer, and lets tests substitute an in-memory implementation.
type Store interface {
	// User operations

	// CreateUser inserts a new account and fills in its assigned ID.
	CreateUser(ctx context.Context, user *types.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID int64) (*types.User, error)

	// GetUserByUsername retrieves a user by login name.
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)

	// ListUsers returns all users, optionally only those currently online.
	ListUsers(ctx context.Context, onlineOnly bool) ([]*types.User, error)

	// SetUserOnline flips a user's presence flag. Called by the relay on
	// connect and disconnect; failures are logged, never fatal.
	SetUserOnline(ctx context.Context, userID int64, online bool) error

	// AddUserSkill attaches a named skill to a user, creating the skill
	// record on first use.
	AddUserSkill(ctx context.Context, userID int64, skill string) error

	// ListUserSkills returns the user's skills in name order.
	ListUserSkills(ctx context.Context, userID int64) ([]string, error)

	// Session operations

	// CreateSession inserts a new session and fills in its assigned ID.
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID int64) (*types.Session, error)

	// ListActiveSessions returns all sessions with active status.
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// SetSessionPartner records the second participant on a session.
	SetSessionPartner(ctx context.Context, sessionID, partnerID int64) error

	// EndSession marks a session ended and stamps its end time.
	// Ending an already-ended session returns ErrSessionAlreadyEnded.
	EndSession(ctx context.Context, sessionID int64) error

	// File operations

	// CreateFile inserts a new shared file and fills in its assigned ID.
	CreateFile(ctx context.Context, file *types.File) error

	// GetFile retrieves a file by ID.
	GetFile(ctx context.Context, fileID int64) (*types.File, error)

	// ListSessionFiles returns a session's files in creation order.
	ListSessionFiles(ctx context.Context, sessionID int64) ([]*types.File, error)

	// UpdateFileContent replaces a file's content (last-write-wins).
	UpdateFileContent(ctx context.Context, fileID int64, content string) error

	// DeleteFile removes a file record.
	DeleteFile(ctx context.Context, fileID int64) error

	// Feedback operations

	// CreateFeedback inserts a post-session rating.
	CreateFeedback(ctx context.Context, feedback *types.Feedback) error

	// ListSessionFeedback returns feedback left on a session.
	ListSessionFeedback(ctx context.Context, sessionID int64) ([]*types.Feedback, error)

	// Chat history

	// StoreChatMessage persists a relayed chat-message event for replay.
	StoreChatMessage(ctx context.Context, message *types.ChatMessage) error

	// GetSessionChat returns a session's chat history in arrival order.
	GetSessionChat(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error)

	// Health and lifecycle

	// HealthCheck verifies database connectivity.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and closes the database.
	Close() error
}
