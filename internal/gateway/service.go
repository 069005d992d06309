package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fishbowl/internal/lobby"
	"github.com/mcdev12/fishbowl/internal/results"
)

// CommandType represents a client-to-server lobby command.
type CommandType string

const (
	CmdJoin        CommandType = "join"
	CmdSubmitWords CommandType = "submit_words"
	CmdStartGame   CommandType = "start_game"
	CmdLeave       CommandType = "leave"
)

// ClientCommand is the message a lobby client sends over the socket.
type ClientCommand struct {
	Type  CommandType `json:"type"`
	Name  string      `json:"name,omitempty"`
	Words []string    `json:"words,omitempty"`
}

// Config holds configuration for the lobby gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the lobby gateway.
func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// Service is the lobby gateway: it upgrades client connections, routes
// their commands into the session lifecycle, and fans lobby state changes
// back out over WebSocket.
type Service struct {
	connectionManager *ConnectionManager
	broadcaster       *SessionBroadcaster
	lifecycle         *lobby.SessionLifecycle
	reader            *results.Reader
	handler           *Handler

	ctx context.Context
}

// NewService wires a gateway over the lifecycle and result reader.
func NewService(config Config, lifecycle *lobby.SessionLifecycle, membership *lobby.MembershipTracker, gate *lobby.SubmissionGate, reader *results.Reader) *Service {
	s := &Service{
		lifecycle: lifecycle,
		reader:    reader,
		ctx:       context.Background(),
	}
	s.connectionManager = NewConnectionManager(config.ConnectionConfig, Hooks{
		OnMessage:       s.handleClientMessage,
		OnSessionActive: s.handleSessionActive,
		OnSessionIdle:   s.handleSessionIdle,
		OnDisconnect:    s.handleDisconnect,
	})
	s.broadcaster = NewSessionBroadcaster(membership, gate, s.connectionManager)
	s.handler = NewHandler(s.connectionManager, reader)
	return s
}

// Start runs the gateway until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting lobby gateway service")
	s.ctx = ctx

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("lobby gateway service shutting down")
	s.broadcaster.Close()
	return nil
}

// RegisterRoutes registers the gateway's WebSocket and REST routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.handler.RegisterRoutes(mux)
	log.Info().Msg("lobby gateway routes registered")
}

// handleSessionActive starts the store watches when a session gains its
// first connection.
func (s *Service) handleSessionActive(sessionID string) {
	if err := s.broadcaster.Track(s.ctx, sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to track session")
	}
}

// handleSessionIdle closes the store watches when the last connection for
// a session goes away.
func (s *Service) handleSessionIdle(sessionID string) {
	s.broadcaster.Untrack(sessionID)
}

// handleDisconnect leaves the session on behalf of a client that dropped
// without an explicit leave.
func (s *Service) handleDisconnect(conn *Connection) {
	player, ok := conn.ClearPlayer()
	if !ok {
		return
	}
	report := s.lifecycle.Leave(s.ctx, conn.SessionID, player)
	if err := report.Err(); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", conn.SessionID).
			Str("player_key", player.Key).
			Msg("cleanup after disconnect was incomplete")
	}
}

func (s *Service) handleClientMessage(conn *Connection, data []byte) {
	var cmd ClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.sendError(conn, "malformed command")
		return
	}

	switch cmd.Type {
	case CmdJoin:
		s.handleJoin(conn, cmd)
	case CmdSubmitWords:
		s.handleSubmitWords(conn, cmd)
	case CmdStartGame:
		s.handleStartGame(conn)
	case CmdLeave:
		s.handleLeave(conn)
	default:
		s.sendError(conn, "unknown command "+string(cmd.Type))
	}
}

func (s *Service) handleJoin(conn *Connection, cmd ClientCommand) {
	if cmd.Name == "" {
		s.sendError(conn, "name is required to join")
		return
	}
	if _, ok := conn.Player(); ok {
		s.sendError(conn, "already joined")
		return
	}
	player, err := s.lifecycle.Join(s.ctx, conn.SessionID, cmd.Name)
	if err != nil {
		log.Error().Err(err).Str("session_id", conn.SessionID).Msg("join failed")
		s.sendError(conn, "could not join session")
		return
	}
	conn.SetPlayer(player)
	s.sendEvent(conn, EventTypeJoined, JoinedPayload{Player: player})
}

func (s *Service) handleSubmitWords(conn *Connection, cmd ClientCommand) {
	player, ok := conn.Player()
	if !ok {
		s.sendError(conn, "join before submitting words")
		return
	}
	err := s.lifecycle.SubmitWords(s.ctx, conn.SessionID, player.Key, cmd.Words)
	var verr *lobby.ValidationError
	if errors.As(err, &verr) {
		s.sendError(conn, verr.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", conn.SessionID).Msg("submit words failed")
		s.sendError(conn, "could not submit words")
	}
}

func (s *Service) handleStartGame(conn *Connection) {
	if _, ok := conn.Player(); !ok {
		s.sendError(conn, "join before starting the game")
		return
	}
	if err := s.lifecycle.StartGame(s.ctx, conn.SessionID); err != nil {
		if errors.Is(err, lobby.ErrSessionNotReady) {
			s.sendError(conn, err.Error())
			return
		}
		log.Error().Err(err).Str("session_id", conn.SessionID).Msg("start game failed")
		s.sendError(conn, "could not start game")
		return
	}
	s.broadcaster.emit(conn.SessionID, EventTypeGameStarting, struct{}{})
}

func (s *Service) handleLeave(conn *Connection) {
	player, ok := conn.ClearPlayer()
	if !ok {
		s.sendError(conn, "not in the session")
		return
	}
	report := s.lifecycle.Leave(s.ctx, conn.SessionID, player)
	s.sendEvent(conn, EventTypeLeft, LeftPayload{LastLeaver: report.LastLeaver})
}

func (s *Service) sendEvent(conn *Connection, eventType EventType, payload interface{}) {
	event, err := NewLobbyEvent(conn.SessionID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	s.connectionManager.SendTo(conn, event)
}

func (s *Service) sendError(conn *Connection, message string) {
	s.sendEvent(conn, EventTypeError, ErrorPayload{Message: message})
}
