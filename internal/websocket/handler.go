package websocket

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"codepair/internal/auth"
	"codepair/internal/config"
	"codepair/internal/relay"
)

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from a separately served frontend.
		// Production deployments should restrict origins here.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades relay socket requests and pumps inbound frames into
// the dispatcher. Identity is proven by a JWT validated before the
// upgrade; the dispatcher later cross-checks it against the senderId
// carried in the first event.
type Handler struct {
	dispatcher *relay.Dispatcher
	tokens     *auth.TokenManager
	cfg        *config.WebSocketConfig
}

// NewHandler creates a new relay socket handler. A nil cfg uses the
// default WebSocket settings.
func NewHandler(dispatcher *relay.Dispatcher, tokens *auth.TokenManager, cfg *config.WebSocketConfig) *Handler {
	if cfg == nil {
		cfg = config.DefaultConfig().WebSocket
	}
	return &Handler{
		dispatcher: dispatcher,
		tokens:     tokens,
		cfg:        cfg,
	}
}

// HandleWebSocket handles relay connection requests. Authentication
// failures get an HTTP error before the handshake; once upgraded, the
// connection only ever closes from transport errors or shutdown, never
// from malformed relay traffic.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		http.Error(w, ErrMissingToken.Error(), http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		http.Error(w, ErrInvalidToken.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for participant %d: %v", claims.UserID, err)
		return
	}

	wsConn := NewConnection(conn, claims.UserID, h.cfg.WriteTimeout, h.cfg.BufferSize)
	log.Printf("Relay connection opened: participant=%d", claims.UserID)

	go h.handleConnection(wsConn)
}

// extractToken pulls the JWT from the token query parameter or the
// Authorization header. Browser WebSocket clients cannot set custom
// headers, so the query parameter is the primary path.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// handleConnection manages the connection lifecycle with heartbeat
// monitoring. Closing the socket is the only cancellation signal the
// relay has, so the deferred disconnect reconciliation must run on
// every exit path.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.dispatcher.HandleDisconnect(conn)
		_ = conn.Close()
		log.Printf("Relay connection closed: participant=%d", conn.ParticipantID())
	}()

	// Read deadline refreshed by pongs, pinged on the configured interval
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	// Read pump: per-connection processing is serialized here, which is
	// what gives the relay its per-sender ordering guarantee.
	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			h.dispatcher.HandleEvent(conn, data)
		}
	}
}
