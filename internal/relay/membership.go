package relay

import "sync"

// Membership tracks which participants are currently joined to which
// session. This is the relay's own live record, independent of the
// persisted session row and its creator/partner columns: membership is
// added only on an explicit join and removed on leave or disconnect,
// never derived from another source of truth.
type Membership struct {
	mu       sync.RWMutex
	sessions map[int64]map[int64]struct{}
}

// NewMembership creates an empty membership table
func NewMembership() *Membership {
	return &Membership{
		sessions: make(map[int64]map[int64]struct{}),
	}
}

// Join adds a participant to a session's member set. Re-joining an
// already-joined participant is a no-op, not an error.
func (m *Membership) Join(sessionID, participantID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.sessions[sessionID]
	if !ok {
		members = make(map[int64]struct{})
		m.sessions[sessionID] = members
	}
	members[participantID] = struct{}{}
}

// Leave removes a participant from a session's member set. It reports
// whether the participant was actually removed, and whether the removal
// left the session empty. Leaving an unknown session or a session the
// participant is not in is a no-op with removed=false, so a given
// (participant, session) pair reports removed=true exactly once across
// the explicit-leave and disconnect paths.
func (m *Membership) Leave(sessionID, participantID int64) (removed, empty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.sessions[sessionID]
	if !ok {
		return false, false
	}
	if _, ok := members[participantID]; !ok {
		return false, false
	}

	delete(members, participantID)
	if len(members) == 0 {
		delete(m.sessions, sessionID)
		return true, true
	}
	return true, false
}

// Members returns the participant set for a session. Unknown sessions
// yield an empty slice, not an error.
func (m *Membership) Members(sessionID int64) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.sessions[sessionID]
	ids := make([]int64, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// IsEmpty reports whether a session has no joined participants.
func (m *Membership) IsEmpty(sessionID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID]) == 0
}

// Stats returns membership counts for monitoring.
func (m *Membership) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	participants := 0
	for _, members := range m.sessions {
		participants += len(members)
	}
	return map[string]int{
		"sessions_with_members": len(m.sessions),
		"joined_participants":   participants,
	}
}
