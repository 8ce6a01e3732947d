package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a gorilla WebSocket connection behind a single writer
// goroutine so concurrent broadcasts never interleave frames. It carries
// the relay's per-connection state: the authenticated identity from the
// upgrade, the participant identity bound by the first inbound event,
// and the session the connection is currently joined to.
type Connection struct {
	conn          *websocket.Conn
	writeCh       chan []byte
	writeTimeout  time.Duration
	authUserID    int64 // Proven at upgrade time, immutable
	participantID int64 // Bound by first inbound event
	sessionID     int64 // Remembered on session-join, at most one at a time
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	mu            sync.RWMutex
}

// NewConnection creates a connection wrapper and starts its writer
// goroutine. authUserID is the identity validated at socket upgrade.
// Non-positive writeTimeout and bufferSize fall back to 5 seconds and
// 100 frames.
func NewConnection(conn *websocket.Conn, authUserID int64, writeTimeout time.Duration, bufferSize int) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		authUserID:   authUserID,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer goroutine for this connection. The
// write channel is never closed: producers may race Close, so a queued
// send must fail on the cancelled context instead of panicking on a
// closed channel. A write failure cancels the context so producers
// stop queuing.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.cancel()
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteRaw queues an already-encoded frame for delivery. The relay uses
// this to forward envelopes verbatim, byte-identical to what the sender
// transmitted.
func (c *Connection) WriteRaw(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// WriteJSON marshals v and queues it for delivery.
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.WriteRaw(data)
}

// Close tears down the connection. Safe to call more than once; the
// context cancel stops the writer goroutine and fails any write still
// waiting to queue.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// AuthUserID returns the identity proven at upgrade time.
func (c *Connection) AuthUserID() int64 {
	return c.authUserID
}

// BindParticipant binds the participant identity established by the
// first inbound event. Stable for the rest of the connection's life.
func (c *Connection) BindParticipant(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participantID = id
}

// ParticipantID returns the bound participant, or 0 before binding.
func (c *Connection) ParticipantID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID
}

// SetSessionID remembers the session this connection is joined to.
// Zero clears the association.
func (c *Connection) SetSessionID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// SessionID returns the remembered session, or 0 if none.
func (c *Connection) SessionID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}
