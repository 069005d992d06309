package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/fishbowl/internal/lobby"
)

// LobbyEvent is the envelope for every event pushed to connected clients.
type LobbyEvent struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of lobby event.
type EventType string

const (
	EventTypeJoined        EventType = "joined"
	EventTypeRosterUpdate  EventType = "roster_update"
	EventTypeWaitingUpdate EventType = "waiting_update"
	EventTypeWordCount     EventType = "word_count"
	EventTypeSessionReady  EventType = "session_ready"
	EventTypeGameStarting  EventType = "game_starting"
	EventTypeLeft          EventType = "left"
	EventTypeError         EventType = "error"
)

// JoinedPayload acknowledges a join with the store-assigned player key.
type JoinedPayload struct {
	Player lobby.PlayerRef `json:"player"`
}

// RosterUpdatePayload carries the full roster after a membership change.
type RosterUpdatePayload struct {
	Players []lobby.PlayerRef `json:"players"`
}

// WaitingUpdatePayload carries the keys of players still owing words.
type WaitingUpdatePayload struct {
	PlayerKeys []string `json:"player_keys"`
}

// WordCountPayload carries submission progress against the threshold.
type WordCountPayload struct {
	Count    int  `json:"count"`
	Required int  `json:"required"`
	Ready    bool `json:"ready"`
}

// LeftPayload reports the outcome of a leave, including whether this
// client performed the session teardown.
type LeftPayload struct {
	LastLeaver bool `json:"last_leaver"`
}

// ErrorPayload carries a client-visible failure.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewLobbyEvent wraps a payload in an event envelope.
func NewLobbyEvent(sessionID string, eventType EventType, payload interface{}) (*LobbyEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &LobbyEvent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
