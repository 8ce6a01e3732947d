package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "codepair/pkg/database"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func createTestUser(t *testing.T, manager *Manager, username string) *types.User {
	t.Helper()
	user := &types.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	}
	require.NoError(t, manager.CreateUser(context.Background(), user))
	return user
}

func createTestSession(t *testing.T, manager *Manager, creatorID int64) *types.Session {
	t.Helper()
	session := &types.Session{Name: "test session", CreatorID: creatorID, Language: "go"}
	require.NoError(t, manager.CreateSession(context.Background(), session))
	return session
}

func TestCreateAndGetUser(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	user := createTestUser(t, manager, "alice")
	assert.NotZero(t, user.ID)

	got, err := manager.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.False(t, got.Online)

	byName, err := manager.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	manager := newTestManager(t)
	createTestUser(t, manager, "alice")

	dup := &types.User{Username: "alice", Email: "other@example.com", PasswordHash: "hash"}
	err := manager.CreateUser(context.Background(), dup)
	assert.ErrorIs(t, err, interfaces.ErrUserExists)
}

func TestGetUserNotFound(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.GetUser(context.Background(), 999)
	assert.ErrorIs(t, err, interfaces.ErrUserNotFound)

	_, err = manager.GetUserByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, interfaces.ErrUserNotFound)
}

func TestListUsersOnlineFilter(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	alice := createTestUser(t, manager, "alice")
	createTestUser(t, manager, "bob")
	require.NoError(t, manager.SetUserOnline(ctx, alice.ID, true))

	all, err := manager.ListUsers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	online, err := manager.ListUsers(ctx, true)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].Username)
	assert.True(t, online[0].Online)
}

func TestUserSkills(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	user := createTestUser(t, manager, "alice")

	require.NoError(t, manager.AddUserSkill(ctx, user.ID, "go"))
	require.NoError(t, manager.AddUserSkill(ctx, user.ID, "sql"))
	// Duplicate attach is a silent no-op.
	require.NoError(t, manager.AddUserSkill(ctx, user.ID, "go"))

	skills, err := manager.ListUserSkills(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sql"}, skills)
}

func TestCreateAndGetSession(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	user := createTestUser(t, manager, "alice")

	session := createTestSession(t, manager, user.ID)
	assert.NotZero(t, session.ID)
	assert.Equal(t, types.SessionStatusActive, session.Status)

	got, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "test session", got.Name)
	assert.Equal(t, user.ID, got.CreatorID)
	assert.Nil(t, got.PartnerID)
	assert.Nil(t, got.EndedAt)
}

func TestSetSessionPartner(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	alice := createTestUser(t, manager, "alice")
	bob := createTestUser(t, manager, "bob")
	session := createTestSession(t, manager, alice.ID)

	require.NoError(t, manager.SetSessionPartner(ctx, session.ID, bob.ID))

	got, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PartnerID)
	assert.Equal(t, bob.ID, *got.PartnerID)

	err = manager.SetSessionPartner(ctx, 999, bob.ID)
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestEndSessionIsExactlyOnce(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	user := createTestUser(t, manager, "alice")
	session := createTestSession(t, manager, user.ID)

	require.NoError(t, manager.EndSession(ctx, session.ID))

	got, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusEnded, got.Status)
	assert.NotNil(t, got.EndedAt)

	// The status guard makes the second end attempt fail cleanly.
	err = manager.EndSession(ctx, session.ID)
	assert.ErrorIs(t, err, interfaces.ErrSessionAlreadyEnded)

	err = manager.EndSession(ctx, 999)
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestListActiveSessions(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	user := createTestUser(t, manager, "alice")

	active := createTestSession(t, manager, user.ID)
	ended := createTestSession(t, manager, user.ID)
	require.NoError(t, manager.EndSession(ctx, ended.ID))

	sessions, err := manager.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, active.ID, sessions[0].ID)
}

func TestFileLifecycle(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	user := createTestUser(t, manager, "alice")
	session := createTestSession(t, manager, user.ID)

	file := &types.File{SessionID: session.ID, Name: "main.go", Language: "go", Content: "package main"}
	require.NoError(t, manager.CreateFile(ctx, file))
	assert.NotZero(t, file.ID)

	got, err := manager.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "package main", got.Content)

	// Later writes win.
	require.NoError(t, manager.UpdateFileContent(ctx, file.ID, "package main\n\nfunc main() {}"))
	require.NoError(t, manager.UpdateFileContent(ctx, file.ID, "package main // v3"))
	got, err = manager.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "package main // v3", got.Content)

	files, err := manager.ListSessionFiles(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	require.NoError(t, manager.DeleteFile(ctx, file.ID))
	_, err = manager.GetFile(ctx, file.ID)
	assert.ErrorIs(t, err, interfaces.ErrFileNotFound)
}

func TestUpdateMissingFile(t *testing.T) {
	manager := newTestManager(t)

	err := manager.UpdateFileContent(context.Background(), 999, "content")
	assert.ErrorIs(t, err, interfaces.ErrFileNotFound)
}

func TestFeedback(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	user := createTestUser(t, manager, "alice")
	session := createTestSession(t, manager, user.ID)

	feedback := &types.Feedback{SessionID: session.ID, AuthorID: user.ID, Rating: 5, Comment: "great pairing"}
	require.NoError(t, manager.CreateFeedback(ctx, feedback))
	assert.NotZero(t, feedback.ID)

	entries, err := manager.ListSessionFeedback(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].Rating)
	assert.Equal(t, "great pairing", entries[0].Comment)
}

func TestChatHistory(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	user := createTestUser(t, manager, "alice")
	session := createTestSession(t, manager, user.ID)

	for i, text := range []string{"first", "second", "third"} {
		message := &types.ChatMessage{
			ID:        string(rune('a' + i)),
			SessionID: session.ID,
			SenderID:  user.ID,
			Text:      text,
		}
		require.NoError(t, manager.StoreChatMessage(ctx, message))
	}

	messages, err := manager.GetSessionChat(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Text)
	assert.Equal(t, "third", messages[2].Text)
}

func TestHealthCheckAndSchema(t *testing.T) {
	manager := newTestManager(t)

	assert.NoError(t, manager.HealthCheck(context.Background()))

	validator := dbconfig.NewSchemaValidator(manager.GetDB())
	assert.NoError(t, validator.ValidateTablesExist())
	assert.NoError(t, validator.ValidateIndexes())
}

func TestCloseIsIdempotent(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	manager, err := NewManager(config)
	require.NoError(t, err)

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	err = manager.SetUserOnline(context.Background(), 1, true)
	assert.Error(t, err)
}
