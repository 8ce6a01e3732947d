package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// Manager owns session lifecycle on top of the store, with an in-memory
// cache of active sessions for the hot paths (relay lifecycle checks and
// session listing). The cache holds only active sessions; ended sessions
// always come from the database.
type Manager struct {
	store          interfaces.Store
	activeSessions map[int64]*types.Session
	mu             sync.RWMutex
}

// NewManager creates a new session manager
func NewManager(store interfaces.Store) *Manager {
	return &Manager{
		store:          store,
		activeSessions: make(map[int64]*types.Session),
	}
}

// LoadActiveSessions loads all active sessions from the database into
// memory. Called once at startup so relay lifecycle checks do not hit
// the database per event.
func (m *Manager) LoadActiveSessions(ctx context.Context) error {
	sessions, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range sessions {
		m.activeSessions[session.ID] = session
	}

	log.Printf("Loaded %d active sessions", len(sessions))
	return nil
}

// CreateSession creates a new collaborative session.
func (m *Manager) CreateSession(ctx context.Context, name string, creatorID int64, language string) (*types.Session, error) {
	if len(name) < 1 || len(name) > 200 {
		return nil, ErrInvalidSessionName
	}
	if creatorID <= 0 {
		return nil, ErrInvalidCreator
	}

	session := &types.Session{
		Name:      name,
		CreatorID: creatorID,
		Language:  language,
		Status:    types.SessionStatusActive,
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.mu.Lock()
	m.activeSessions[session.ID] = session
	m.mu.Unlock()

	log.Printf("Created session: id=%d name=%q creator=%d", session.ID, session.Name, creatorID)
	return session, nil
}

// GetSession retrieves a session, checking the active cache first.
func (m *Manager) GetSession(ctx context.Context, sessionID int64) (*types.Session, error) {
	m.mu.RLock()
	if session, ok := m.activeSessions[sessionID]; ok {
		m.mu.RUnlock()
		return session, nil
	}
	m.mu.RUnlock()

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// JoinSession records a partner on an active session. The schema allows
// exactly one partner; the relay's live membership is tracked separately
// and is not constrained by this.
func (m *Manager) JoinSession(ctx context.Context, sessionID, partnerID int64) (*types.Session, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusActive {
		return nil, ErrSessionEnded
	}
	if session.CreatorID == partnerID {
		return nil, ErrSelfPartner
	}
	if session.PartnerID != nil && *session.PartnerID != partnerID {
		return nil, ErrSessionFull
	}

	if err := m.store.SetSessionPartner(ctx, sessionID, partnerID); err != nil {
		return nil, fmt.Errorf("failed to set session partner: %w", err)
	}

	m.mu.Lock()
	if cached, ok := m.activeSessions[sessionID]; ok {
		cached.PartnerID = &partnerID
		session = cached
	}
	m.mu.Unlock()

	log.Printf("Partner joined session: id=%d partner=%d", sessionID, partnerID)
	return session, nil
}

// EndSession ends an active session. Ending an already-ended session
// returns ErrSessionAlreadyEnded rather than ending it twice; the relay
// dispatcher relies on this for its end-exactly-once invariant.
func (m *Manager) EndSession(ctx context.Context, sessionID int64) error {
	m.mu.RLock()
	_, active := m.activeSessions[sessionID]
	m.mu.RUnlock()

	if !active {
		session, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, interfaces.ErrSessionNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if session.Status == types.SessionStatusEnded {
			return ErrSessionAlreadyEnded
		}
	}

	if err := m.store.EndSession(ctx, sessionID); err != nil {
		if errors.Is(err, interfaces.ErrSessionAlreadyEnded) {
			return ErrSessionAlreadyEnded
		}
		return fmt.Errorf("failed to end session: %w", err)
	}

	m.mu.Lock()
	delete(m.activeSessions, sessionID)
	m.mu.Unlock()

	log.Printf("Ended session: id=%d", sessionID)
	return nil
}

// ListActiveSessions returns the cached active sessions.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	m.mu.RLock()
	sessions := make([]*types.Session, 0, len(m.activeSessions))
	for _, session := range m.activeSessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	return sessions, nil
}

// IsSessionActive checks the cache only; good enough for stats.
func (m *Manager) IsSessionActive(sessionID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.activeSessions[sessionID]
	return ok && session.Status == types.SessionStatusActive
}

// GetStats returns session manager statistics
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"active_sessions": len(m.activeSessions),
	}
}
