package relay

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// SessionLifecycle is the slice of session management the dispatcher
// needs: ending a session exactly once when its last participant leaves.
// Ending an already-ended session must return a non-nil error rather
// than ending it twice.
type SessionLifecycle interface {
	EndSession(ctx context.Context, sessionID int64) error
}

// Dispatcher is the relay's fan-out engine. For every inbound event it
// binds sender identity, maintains registry and membership state, relays
// the raw envelope to the other members of the event's session, and then
// applies storage side effects.
//
// Processing is serialized per connection by the transport read loop;
// registry and membership carry their own locks so events from different
// connections can be dispatched concurrently. Storage side effects are
// fire-and-forget: they run after the broadcast, their failures are
// logged, and a failure never retracts a broadcast already sent.
type Dispatcher struct {
	registry   *Registry
	membership *Membership
	store      interfaces.Store
	sessions   SessionLifecycle
}

// NewDispatcher creates a new relay dispatcher
func NewDispatcher(registry *Registry, membership *Membership, store interfaces.Store, sessions SessionLifecycle) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		membership: membership,
		store:      store,
		sessions:   sessions,
	}
}

// HandleEvent processes one raw frame received on a connection.
// Malformed frames are dropped and logged; the connection stays open.
// Nothing here is fatal and no error is ever sent back to the sender.
func (d *Dispatcher) HandleEvent(conn interfaces.Connection, raw []byte) {
	event, err := types.ParseEvent(raw)
	if err != nil {
		log.Printf("Dropping malformed event from participant %d: %v", conn.ParticipantID(), err)
		return
	}

	if err := d.bindIdentity(conn, event); err != nil {
		log.Printf("Dropping event with senderId %d: %v", event.SenderID, err)
		return
	}

	if event.Kind == types.EventSessionJoin {
		d.handleJoin(conn, event)
	}

	d.broadcast(event.SessionID, event.SenderID, raw)

	d.applySideEffects(conn, event)
}

// HandleDisconnect reconciles state when a connection closes. It mirrors
// the explicit session-leave path: the participant goes offline, leaves
// its remembered session, a synthesized session-leave reaches the
// remaining members, and an emptied session is ended exactly once.
//
// Reconciliation belongs to whichever connection currently owns the
// participant's registry entry. When a participant reconnects, the
// replaced socket's close must not tear down the state the replacement
// is using, so a superseded connection skips reconciliation entirely.
func (d *Dispatcher) HandleDisconnect(conn interfaces.Connection) {
	participantID := conn.ParticipantID()
	if participantID == 0 {
		return // Never sent an event, nothing to reconcile
	}

	if !d.registry.Unregister(participantID, conn) {
		return // Replaced by a newer connection, which owns reconciliation
	}

	go func() {
		if err := d.store.SetUserOnline(context.Background(), participantID, false); err != nil {
			log.Printf("Failed to mark participant %d offline: %v", participantID, err)
		}
	}()

	sessionID := conn.SessionID()
	if sessionID == 0 {
		return
	}

	removed, empty := d.membership.Leave(sessionID, participantID)
	if !removed {
		return // Already left explicitly, do not reconcile twice
	}

	d.broadcastSyntheticLeave(sessionID, participantID)
	d.endIfEmpty(sessionID, empty)
}

// Stats returns live relay state for the health endpoint.
func (d *Dispatcher) Stats() map[string]int {
	stats := d.membership.Stats()
	stats["registered_connections"] = d.registry.Count()
	return stats
}

// bindIdentity establishes the connection's participant identity from
// the first event's senderId. The identity proven at upgrade time must
// match; after binding, a senderId that disagrees with the bound
// identity gets the event dropped with ErrIdentityMismatch.
func (d *Dispatcher) bindIdentity(conn interfaces.Connection, event *types.Event) error {
	bound := conn.ParticipantID()
	if bound == 0 {
		if auth := conn.AuthUserID(); auth != 0 && auth != event.SenderID {
			return ErrIdentityMismatch
		}
		conn.BindParticipant(event.SenderID)
		return d.registry.Register(event.SenderID, conn)
	}

	if bound != event.SenderID {
		return ErrIdentityMismatch
	}
	return nil
}

// handleJoin registers the connection and adds the sender to the target
// session's member set. A join while still bound to a different session
// performs an implicit leave of the old session first, so the remembered
// session is replaced explicitly rather than silently overwritten.
func (d *Dispatcher) handleJoin(conn interfaces.Connection, event *types.Event) {
	if err := d.registry.Register(event.SenderID, conn); err != nil {
		log.Printf("Failed to register connection for participant %d: %v", event.SenderID, err)
		return
	}

	if prev := conn.SessionID(); prev != 0 && prev != event.SessionID {
		removed, empty := d.membership.Leave(prev, event.SenderID)
		if removed {
			log.Printf("Participant %d left session %d by joining session %d", event.SenderID, prev, event.SessionID)
			d.broadcastSyntheticLeave(prev, event.SenderID)
			d.endIfEmpty(prev, empty)
		}
	}

	d.membership.Join(event.SessionID, event.SenderID)
	conn.SetSessionID(event.SessionID)
}

// broadcast relays the raw, unmodified envelope to every member of the
// session except the sender. Members whose connection is absent or whose
// write fails are skipped; delivery is best-effort.
func (d *Dispatcher) broadcast(sessionID, senderID int64, raw []byte) {
	for _, memberID := range d.membership.Members(sessionID) {
		if memberID == senderID {
			continue
		}
		target, ok := d.registry.Lookup(memberID)
		if !ok {
			continue // Stale member, no live connection
		}
		if err := target.WriteRaw(raw); err != nil {
			log.Printf("Skipping broadcast to participant %d in session %d: %v", memberID, sessionID, err)
		}
	}
}

// broadcastSyntheticLeave fans out a server-synthesized session-leave so
// remaining members observe a disconnect the same way as an explicit
// leave message.
func (d *Dispatcher) broadcastSyntheticLeave(sessionID, participantID int64) {
	event := types.Event{
		Kind:      types.EventSessionLeave,
		SessionID: sessionID,
		SenderID:  participantID,
	}
	raw, err := json.Marshal(&event)
	if err != nil {
		log.Printf("Failed to encode synthesized leave for participant %d: %v", participantID, err)
		return
	}
	d.broadcast(sessionID, participantID, raw)
}

// applySideEffects performs the event-specific storage calls after the
// broadcast. All calls are best-effort: failures are logged and the
// broadcast already sent is never rolled back or retried.
func (d *Dispatcher) applySideEffects(conn interfaces.Connection, event *types.Event) {
	switch event.Kind {
	case types.EventSessionJoin:
		go func(participantID int64) {
			if err := d.store.SetUserOnline(context.Background(), participantID, true); err != nil {
				log.Printf("Failed to mark participant %d online: %v", participantID, err)
			}
		}(event.SenderID)

	case types.EventCodeChange:
		var payload types.CodeChangePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.FileID == 0 {
			return // No file id, nothing to persist
		}
		go func() {
			if err := d.store.UpdateFileContent(context.Background(), payload.FileID, payload.Content); err != nil {
				log.Printf("Failed to persist content for file %d: %v", payload.FileID, err)
			}
		}()

	case types.EventFileCreate:
		var payload types.FileCreatePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			log.Printf("Dropping file-create side effect for session %d: %v", event.SessionID, err)
			return
		}
		if !types.IsValidFileName(payload.Name) {
			log.Printf("Dropping file-create side effect for session %d: %v", event.SessionID, types.ErrInvalidFileName)
			return
		}
		go func(sessionID int64) {
			file := &types.File{
				SessionID: sessionID,
				Name:      payload.Name,
				Language:  payload.Language,
				Content:   payload.Content,
			}
			if err := d.store.CreateFile(context.Background(), file); err != nil {
				log.Printf("Failed to persist new file %q in session %d: %v", payload.Name, sessionID, err)
			}
		}(event.SessionID)

	case types.EventFileDelete:
		var payload types.FileDeletePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.FileID == 0 {
			return
		}
		go func() {
			if err := d.store.DeleteFile(context.Background(), payload.FileID); err != nil {
				log.Printf("Failed to delete file %d: %v", payload.FileID, err)
			}
		}()

	case types.EventChatMessage:
		var payload types.ChatPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return
		}
		go func(sessionID, senderID int64) {
			message := &types.ChatMessage{
				ID:        uuid.New().String(),
				SessionID: sessionID,
				SenderID:  senderID,
				Text:      payload.Text,
				SentAt:    payload.SentAt,
			}
			if err := d.store.StoreChatMessage(context.Background(), message); err != nil {
				log.Printf("Failed to persist chat message in session %d: %v", sessionID, err)
			}
		}(event.SessionID, event.SenderID)

	case types.EventSessionLeave:
		removed, empty := d.membership.Leave(event.SessionID, event.SenderID)
		if !removed {
			return // Unknown session or participant: silent no-op
		}
		if conn.SessionID() == event.SessionID {
			conn.SetSessionID(0)
		}
		d.endIfEmpty(event.SessionID, empty)
	}
}

// endIfEmpty ends a session whose member set just became empty. The
// membership table reports the emptying transition exactly once, and the
// session lifecycle layer refuses to end an already-ended session, so
// the end side effect fires at most once per session.
func (d *Dispatcher) endIfEmpty(sessionID int64, empty bool) {
	if !empty {
		return
	}
	go func() {
		if err := d.sessions.EndSession(context.Background(), sessionID); err != nil {
			log.Printf("Failed to end emptied session %d: %v", sessionID, err)
		} else {
			log.Printf("Ended session %d: last participant left", sessionID)
		}
	}()
}
