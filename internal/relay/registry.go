package relay

import (
	"log"
	"sync"

	"codepair/pkg/interfaces"
)

// Registry maps participant identifiers to their live socket connections.
// Pure connection tracking with no business logic; the dispatcher decides
// when to register and who to broadcast to.
//
// A participant has at most one registered connection. Registering a new
// connection for an already-registered participant closes the prior socket
// instead of leaving it orphaned, so two live sockets never compete for
// one identity.
type Registry struct {
	mu          sync.RWMutex
	connections map[int64]interfaces.Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[int64]interfaces.Connection),
	}
}

// Register installs a connection for a participant. Re-registering the
// same connection instance is a no-op; a different instance replaces the
// old one and the old socket is closed asynchronously to avoid holding
// the registry lock across a close.
func (r *Registry) Register(participantID int64, conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[participantID]; ok {
		if existing == conn {
			return nil
		}
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("Failed to close replaced connection for participant %d: %v", participantID, err)
			}
		}()
	}

	r.connections[participantID] = conn
	return nil
}

// Unregister removes a participant's entry, but only if it still points at
// the given connection instance. This keeps a stale connection's cleanup
// from evicting a newer connection registered for the same participant.
// It reports whether an entry was removed; false means the identity is
// owned by a newer connection, or was never registered.
func (r *Registry) Unregister(participantID int64, conn interfaces.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	registered, ok := r.connections[participantID]
	if !ok {
		return false
	}
	if conn != nil && registered != conn {
		return false
	}

	delete(r.connections, participantID)
	return true
}

// Lookup returns the registered connection for a participant. The second
// return is false for absent participants; the dispatcher treats that as
// a silently skipped broadcast target, never an error.
func (r *Registry) Lookup(participantID int64) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[participantID]
	return conn, ok
}

// Count returns the number of registered connections for stats reporting.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
