package relay

import (
	"context"
	"encoding/json"
	"sync"

	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// mockConn is an in-memory Connection that records delivered frames.
type mockConn struct {
	mu            sync.Mutex
	authID        int64
	participantID int64
	sessionID     int64
	frames        [][]byte
	closed        bool
}

func newMockConn(authID int64) *mockConn {
	return &mockConn{authID: authID}
}

func (c *mockConn) WriteRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNilConnection
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	c.frames = append(c.frames, frame)
	return nil
}

func (c *mockConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteRaw(data)
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) receivedFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := make([][]byte, len(c.frames))
	copy(frames, c.frames)
	return frames
}

func (c *mockConn) AuthUserID() int64 { return c.authID }

func (c *mockConn) BindParticipant(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participantID = id
}

func (c *mockConn) ParticipantID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID
}

func (c *mockConn) SetSessionID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

func (c *mockConn) SessionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

var _ interfaces.Connection = (*mockConn)(nil)

// storeCall records one storage side effect invocation.
type storeCall struct {
	method string
	args   []interface{}
}

// mockStore records the side-effect calls the dispatcher makes and
// no-ops everything the relay never touches.
type mockStore struct {
	mu    sync.Mutex
	calls []storeCall
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (s *mockStore) record(method string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{method: method, args: args})
}

// callCount returns how many times a method was invoked.
func (s *mockStore) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if call.method == method {
			count++
		}
	}
	return count
}

// hasCall reports whether the method was invoked with exactly these args.
func (s *mockStore) hasCall(method string, args ...interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, call := range s.calls {
		if call.method != method || len(call.args) != len(args) {
			continue
		}
		match := true
		for i := range args {
			if call.args[i] != args[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// lastCall returns the most recent invocation of a method.
func (s *mockStore) lastCall(method string) (storeCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].method == method {
			return s.calls[i], true
		}
	}
	return storeCall{}, false
}

func (s *mockStore) SetUserOnline(ctx context.Context, userID int64, online bool) error {
	s.record("SetUserOnline", userID, online)
	return nil
}

func (s *mockStore) UpdateFileContent(ctx context.Context, fileID int64, content string) error {
	s.record("UpdateFileContent", fileID, content)
	return nil
}

func (s *mockStore) CreateFile(ctx context.Context, file *types.File) error {
	s.record("CreateFile", file.SessionID, file.Name, file.Content, file.Language)
	return nil
}

func (s *mockStore) DeleteFile(ctx context.Context, fileID int64) error {
	s.record("DeleteFile", fileID)
	return nil
}

func (s *mockStore) StoreChatMessage(ctx context.Context, message *types.ChatMessage) error {
	s.record("StoreChatMessage", message.SessionID, message.SenderID, message.Text)
	return nil
}

func (s *mockStore) CreateUser(ctx context.Context, user *types.User) error { return nil }
func (s *mockStore) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	return &types.User{ID: userID}, nil
}
func (s *mockStore) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return nil, nil
}
func (s *mockStore) ListUsers(ctx context.Context, onlineOnly bool) ([]*types.User, error) {
	return nil, nil
}
func (s *mockStore) AddUserSkill(ctx context.Context, userID int64, skill string) error { return nil }
func (s *mockStore) ListUserSkills(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}
func (s *mockStore) CreateSession(ctx context.Context, session *types.Session) error { return nil }
func (s *mockStore) GetSession(ctx context.Context, sessionID int64) (*types.Session, error) {
	return nil, nil
}
func (s *mockStore) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil
}
func (s *mockStore) SetSessionPartner(ctx context.Context, sessionID, partnerID int64) error {
	return nil
}
func (s *mockStore) EndSession(ctx context.Context, sessionID int64) error { return nil }
func (s *mockStore) GetFile(ctx context.Context, fileID int64) (*types.File, error) {
	return nil, nil
}
func (s *mockStore) ListSessionFiles(ctx context.Context, sessionID int64) ([]*types.File, error) {
	return nil, nil
}
func (s *mockStore) CreateFeedback(ctx context.Context, feedback *types.Feedback) error { return nil }
func (s *mockStore) ListSessionFeedback(ctx context.Context, sessionID int64) ([]*types.Feedback, error) {
	return nil, nil
}
func (s *mockStore) GetSessionChat(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error) {
	return nil, nil
}
func (s *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (s *mockStore) Close() error                          { return nil }

var _ interfaces.Store = (*mockStore)(nil)

// mockLifecycle counts EndSession calls per session.
type mockLifecycle struct {
	mu    sync.Mutex
	ended map[int64]int
}

func newMockLifecycle() *mockLifecycle {
	return &mockLifecycle{ended: make(map[int64]int)}
}

func (l *mockLifecycle) EndSession(ctx context.Context, sessionID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended[sessionID]++
	return nil
}

func (l *mockLifecycle) endCount(sessionID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ended[sessionID]
}
