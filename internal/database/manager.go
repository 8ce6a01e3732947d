package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "codepair/pkg/database"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// Manager implements the Store interface over SQLite. All writes funnel
// through a single goroutine, which is what SQLite wants; reads go
// straight to the pool and run concurrently under WAL mode.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a queued database write
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and schema, and starts
// the single-writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine,
// retrying a failed write exactly once after a 5 second pause.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && !isDomainError(err) {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// isDomainError reports whether a write failed for a domain reason that
// a retry cannot fix, like a duplicate username or an already-ended
// session. Only infrastructure failures are worth retrying.
func isDomainError(err error) bool {
	return errors.Is(err, interfaces.ErrUserExists) ||
		errors.Is(err, interfaces.ErrUserNotFound) ||
		errors.Is(err, interfaces.ErrSessionNotFound) ||
		errors.Is(err, interfaces.ErrSessionAlreadyEnded) ||
		errors.Is(err, interfaces.ErrFileNotFound)
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// User operations

// CreateUser inserts a new account and fills in its assigned ID.
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`INSERT INTO users (username, email, password_hash, online) VALUES (?, ?, ?, 0)`,
			user.Username, user.Email, user.PasswordHash,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
				return interfaces.ErrUserExists
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted user id: %w", err)
		}
		user.ID = id
		user.CreatedAt = time.Now()
		return nil
	})
}

// GetUser retrieves a user by ID.
func (m *Manager) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	return m.scanUser(m.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, online, created_at FROM users WHERE id = ?`,
		userID,
	))
}

// GetUserByUsername retrieves a user by login name.
func (m *Manager) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return m.scanUser(m.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, online, created_at FROM users WHERE username = ?`,
		username,
	))
}

func (m *Manager) scanUser(row *sql.Row) (*types.User, error) {
	var user types.User
	var online int
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &online, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Online = online != 0
	return &user, nil
}

// ListUsers returns all users, optionally only those currently online.
func (m *Manager) ListUsers(ctx context.Context, onlineOnly bool) ([]*types.User, error) {
	query := `SELECT id, username, email, password_hash, online, created_at FROM users ORDER BY username`
	if onlineOnly {
		query = `SELECT id, username, email, password_hash, online, created_at FROM users WHERE online = 1 ORDER BY username`
	}

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*types.User
	for rows.Next() {
		var user types.User
		var online int
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &online, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		user.Online = online != 0
		users = append(users, &user)
	}
	return users, rows.Err()
}

// SetUserOnline flips a user's presence flag.
func (m *Manager) SetUserOnline(ctx context.Context, userID int64, online bool) error {
	return m.executeWrite(func(db *sql.DB) error {
		value := 0
		if online {
			value = 1
		}
		_, err := db.ExecContext(ctx, `UPDATE users SET online = ? WHERE id = ?`, value, userID)
		if err != nil {
			return fmt.Errorf("failed to update presence for user %d: %w", userID, err)
		}
		return nil
	})
}

// AddUserSkill attaches a named skill to a user, creating the skill
// record on first use.
func (m *Manager) AddUserSkill(ctx context.Context, userID int64, skill string) error {
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO skills (name) VALUES (?)`, skill); err != nil {
			return fmt.Errorf("failed to ensure skill %q: %w", skill, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_skills (user_id, skill_id)
			 SELECT ?, id FROM skills WHERE name = ?`,
			userID, skill,
		); err != nil {
			return fmt.Errorf("failed to attach skill %q to user %d: %w", skill, userID, err)
		}

		return tx.Commit()
	})
}

// ListUserSkills returns the user's skills in name order.
func (m *Manager) ListUserSkills(ctx context.Context, userID int64) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT s.name FROM skills s
		 JOIN user_skills us ON us.skill_id = s.id
		 WHERE us.user_id = ? ORDER BY s.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills for user %d: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var skills []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan skill row: %w", err)
		}
		skills = append(skills, name)
	}
	return skills, rows.Err()
}

// Session operations

// CreateSession inserts a new session and fills in its assigned ID.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`INSERT INTO sessions (name, creator_id, language, status) VALUES (?, ?, ?, ?)`,
			session.Name, session.CreatorID, session.Language, types.SessionStatusActive,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted session id: %w", err)
		}
		session.ID = id
		session.Status = types.SessionStatusActive
		session.CreatedAt = time.Now()
		return nil
	})
}

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID int64) (*types.Session, error) {
	var session types.Session
	var partnerID sql.NullInt64
	var endedAt sql.NullTime

	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, creator_id, partner_id, language, status, created_at, ended_at
		 FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&session.ID, &session.Name, &session.CreatorID, &partnerID, &session.Language,
		&session.Status, &session.CreatedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if partnerID.Valid {
		session.PartnerID = &partnerID.Int64
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}

// ListActiveSessions returns all sessions with active status.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, creator_id, partner_id, language, status, created_at, ended_at
		 FROM sessions WHERE status = ? ORDER BY created_at DESC`,
		types.SessionStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		var partnerID sql.NullInt64
		var endedAt sql.NullTime
		if err := rows.Scan(&session.ID, &session.Name, &session.CreatorID, &partnerID,
			&session.Language, &session.Status, &session.CreatedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if partnerID.Valid {
			session.PartnerID = &partnerID.Int64
		}
		if endedAt.Valid {
			session.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// SetSessionPartner records the second participant on a session.
func (m *Manager) SetSessionPartner(ctx context.Context, sessionID, partnerID int64) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`UPDATE sessions SET partner_id = ? WHERE id = ? AND status = ?`,
			partnerID, sessionID, types.SessionStatusActive,
		)
		if err != nil {
			return fmt.Errorf("failed to set partner on session %d: %w", sessionID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check partner update: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

// EndSession marks a session ended. The status guard in the WHERE clause
// makes the transition atomic: a second end attempt affects zero rows
// and reports ErrSessionAlreadyEnded.
func (m *Manager) EndSession(ctx context.Context, sessionID int64) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`UPDATE sessions SET status = ?, ended_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
			types.SessionStatusEnded, sessionID, types.SessionStatusActive,
		)
		if err != nil {
			return fmt.Errorf("failed to end session %d: %w", sessionID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check session end: %w", err)
		}
		if affected == 0 {
			var status string
			err := db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&status)
			if err == sql.ErrNoRows {
				return interfaces.ErrSessionNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to check session %d status: %w", sessionID, err)
			}
			return interfaces.ErrSessionAlreadyEnded
		}
		return nil
	})
}

// File operations

// CreateFile inserts a new shared file and fills in its assigned ID.
func (m *Manager) CreateFile(ctx context.Context, file *types.File) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`INSERT INTO files (session_id, name, language, content) VALUES (?, ?, ?, ?)`,
			file.SessionID, file.Name, file.Language, file.Content,
		)
		if err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted file id: %w", err)
		}
		file.ID = id
		file.UpdatedAt = time.Now()
		return nil
	})
}

// GetFile retrieves a file by ID.
func (m *Manager) GetFile(ctx context.Context, fileID int64) (*types.File, error) {
	var file types.File
	err := m.db.QueryRowContext(ctx,
		`SELECT id, session_id, name, language, content, updated_at FROM files WHERE id = ?`,
		fileID,
	).Scan(&file.ID, &file.SessionID, &file.Name, &file.Language, &file.Content, &file.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}
	return &file, nil
}

// ListSessionFiles returns a session's files in creation order.
func (m *Manager) ListSessionFiles(ctx context.Context, sessionID int64) ([]*types.File, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, session_id, name, language, content, updated_at
		 FROM files WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list files for session %d: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var files []*types.File
	for rows.Next() {
		var file types.File
		if err := rows.Scan(&file.ID, &file.SessionID, &file.Name, &file.Language,
			&file.Content, &file.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		files = append(files, &file)
	}
	return files, rows.Err()
}

// UpdateFileContent replaces a file's content. Updates apply in arrival
// order with no merge; the later write wins.
func (m *Manager) UpdateFileContent(ctx context.Context, fileID int64, content string) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`UPDATE files SET content = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			content, fileID,
		)
		if err != nil {
			return fmt.Errorf("failed to update content for file %d: %w", fileID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check file update: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrFileNotFound
		}
		return nil
	})
}

// DeleteFile removes a file record.
func (m *Manager) DeleteFile(ctx context.Context, fileID int64) error {
	return m.executeWrite(func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
			return fmt.Errorf("failed to delete file %d: %w", fileID, err)
		}
		return nil
	})
}

// Feedback operations

// CreateFeedback inserts a post-session rating.
func (m *Manager) CreateFeedback(ctx context.Context, feedback *types.Feedback) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`INSERT INTO feedback (session_id, author_id, rating, comment) VALUES (?, ?, ?, ?)`,
			feedback.SessionID, feedback.AuthorID, feedback.Rating, feedback.Comment,
		)
		if err != nil {
			return fmt.Errorf("failed to insert feedback: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted feedback id: %w", err)
		}
		feedback.ID = id
		feedback.CreatedAt = time.Now()
		return nil
	})
}

// ListSessionFeedback returns feedback left on a session.
func (m *Manager) ListSessionFeedback(ctx context.Context, sessionID int64) ([]*types.Feedback, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, session_id, author_id, rating, comment, created_at
		 FROM feedback WHERE session_id = ? ORDER BY created_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback for session %d: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.Feedback
	for rows.Next() {
		var entry types.Feedback
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.AuthorID, &entry.Rating,
			&entry.Comment, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Chat history

// StoreChatMessage persists a relayed chat-message event for replay.
func (m *Manager) StoreChatMessage(ctx context.Context, message *types.ChatMessage) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO chat_messages (id, session_id, sender_id, text, sent_at) VALUES (?, ?, ?, ?, ?)`,
			message.ID, message.SessionID, message.SenderID, message.Text, message.SentAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}
		return nil
	})
}

// GetSessionChat returns a session's chat history in arrival order.
func (m *Manager) GetSessionChat(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, session_id, sender_id, text, sent_at, stored_at
		 FROM chat_messages WHERE session_id = ? ORDER BY stored_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat for session %d: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.ChatMessage
	for rows.Next() {
		var message types.ChatMessage
		if err := rows.Scan(&message.ID, &message.SessionID, &message.SenderID,
			&message.Text, &message.SentAt, &message.StoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		messages = append(messages, &message)
	}
	return messages, rows.Err()
}

// Health and lifecycle

// HealthCheck verifies database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// GetDB exposes the underlying pool for schema validation tooling.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close flushes pending writes and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	return m.db.Close()
}
