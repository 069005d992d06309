package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fishbowl/internal/lobby"
)

// ConnectionManager manages WebSocket connections for lobby sessions.
type ConnectionManager struct {
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	hooks    Hooks

	broadcastCh chan broadcastMessage
}

// Hooks are the callbacks the manager fires into the rest of the gateway.
type Hooks struct {
	// OnMessage receives every client message.
	OnMessage func(conn *Connection, data []byte)
	// OnSessionActive fires when a session gains its first connection.
	OnSessionActive func(sessionID string)
	// OnSessionIdle fires when a session loses its last connection.
	OnSessionIdle func(sessionID string)
	// OnDisconnect fires when a connection goes away.
	OnDisconnect func(conn *Connection)
}

// Connection represents a WebSocket connection to one lobby client.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time

	// player is set once the client joins and cleared on explicit leave,
	// so disconnect cleanup runs at most once.
	playerMu sync.Mutex
	player   lobby.PlayerRef
}

// SetPlayer records the joined identity on the connection.
func (c *Connection) SetPlayer(p lobby.PlayerRef) {
	c.playerMu.Lock()
	defer c.playerMu.Unlock()
	c.player = p
}

// Player returns the joined identity, if any.
func (c *Connection) Player() (lobby.PlayerRef, bool) {
	c.playerMu.Lock()
	defer c.playerMu.Unlock()
	return c.player, c.player.Key != ""
}

// ClearPlayer forgets the joined identity and returns it.
func (c *Connection) ClearPlayer() (lobby.PlayerRef, bool) {
	c.playerMu.Lock()
	defer c.playerMu.Unlock()
	p := c.player
	c.player = lobby.PlayerRef{}
	return p, p.Key != ""
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	SessionID string
	Event     *LobbyEvent
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, hooks Hooks) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		hooks:       hooks,
		broadcastCh: make(chan broadcastMessage, 256),
	}
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers
// it with the session.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, 64),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("session_id", sessionID).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	first := cm.sessionConnections[conn.SessionID] == nil
	if first {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true
	cm.mu.Unlock()

	if first && cm.hooks.OnSessionActive != nil {
		cm.hooks.OnSessionActive(conn.SessionID)
	}
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.sessionConnections[conn.SessionID]
	if !exists || !connections[conn] {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	close(conn.Send)
	idle := len(connections) == 0
	if idle {
		delete(cm.sessionConnections, conn.SessionID)
	}
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Msg("connection unregistered")

	if cm.hooks.OnDisconnect != nil {
		cm.hooks.OnDisconnect(conn)
	}
	if idle && cm.hooks.OnSessionIdle != nil {
		cm.hooks.OnSessionIdle(conn.SessionID)
	}
}

// Broadcast sends an event to every connection in a session.
func (cm *ConnectionManager) Broadcast(sessionID string, event *LobbyEvent) {
	select {
	case cm.broadcastCh <- broadcastMessage{SessionID: sessionID, Event: event}:
	default:
		log.Warn().Str("session_id", sessionID).Msg("broadcast channel full, dropping message")
	}
}

// SendTo delivers an event to a single connection.
func (cm *ConnectionManager) SendTo(conn *Connection, event *LobbyEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.sessionConnections[message.SessionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("session_id", message.SessionID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// Stats returns counts of active connections per session.
func (cm *ConnectionManager) Stats() (total int, sessions map[string]int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	sessions = make(map[string]int)
	for sessionID, connections := range cm.sessionConnections {
		sessions[sessionID] = len(connections)
		total += len(connections)
	}
	return total, sessions
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		if c.Manager.hooks.OnMessage != nil {
			c.Manager.hooks.OnMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
