package database

import (
	"database/sql"
	"fmt"
)

// Schema statements applied at startup. CREATE TABLE IF NOT EXISTS keeps
// startup idempotent across restarts against the same database file.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		online        INTEGER NOT NULL DEFAULT 0,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS skills (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS user_skills (
		user_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		skill_id INTEGER NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, skill_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		creator_id INTEGER NOT NULL REFERENCES users(id),
		partner_id INTEGER REFERENCES users(id),
		language   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'ended')),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ended_at   DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		language   TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		author_id  INTEGER NOT NULL REFERENCES users(id),
		rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment    TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id         TEXT PRIMARY KEY,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		sender_id  INTEGER NOT NULL REFERENCES users(id),
		text       TEXT NOT NULL,
		sent_at    TEXT NOT NULL DEFAULT '',
		stored_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_creator ON sessions(creator_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_session ON files(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_session ON feedback(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_session_time ON chat_messages(session_id, stored_at)`,
	`CREATE INDEX IF NOT EXISTS idx_users_online ON users(online)`,
}

// EnsureSchema creates all tables and indexes if they do not exist.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// SchemaValidator provides database schema validation for deployment checks.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"users":         "User accounts",
		"skills":        "Skill catalogue",
		"user_skills":   "User to skill mapping",
		"sessions":      "Collaborative sessions",
		"files":         "Shared session files",
		"feedback":      "Post-session feedback",
		"chat_messages": "Relayed chat history",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_sessions_status":   "Active session lookups",
		"idx_sessions_creator":  "Session ownership queries",
		"idx_files_session":     "Session file listing",
		"idx_feedback_session":  "Session feedback listing",
		"idx_chat_session_time": "Chat history retrieval",
		"idx_users_online":      "Online user filtering",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// tableExists checks if a table exists in the database
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database
func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
