package gateway

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fishbowl/internal/lobby"
	"github.com/mcdev12/fishbowl/internal/store"
)

// EventSink receives the events a broadcaster produces. The connection
// manager is the production sink.
type EventSink interface {
	Broadcast(sessionID string, event *LobbyEvent)
}

// SessionBroadcaster owns the store subscriptions behind the gateway: one
// roster, waiting and word-count watch per tracked session, folded into
// lobby events for connected clients. Tracking stops, and the watches are
// closed, when the session loses its last connection.
type SessionBroadcaster struct {
	membership *lobby.MembershipTracker
	gate       *lobby.SubmissionGate
	sink       EventSink

	mu       sync.Mutex
	sessions map[string]*sessionWatch
}

type sessionWatch struct {
	subs []*store.Subscription

	mu     sync.Mutex
	roster lobby.Roster
	count  int
	ready  bool
}

// NewSessionBroadcaster creates a broadcaster feeding the given sink.
func NewSessionBroadcaster(membership *lobby.MembershipTracker, gate *lobby.SubmissionGate, sink EventSink) *SessionBroadcaster {
	return &SessionBroadcaster{
		membership: membership,
		gate:       gate,
		sink:       sink,
		sessions:   make(map[string]*sessionWatch),
	}
}

// Track starts watching a session. Tracking an already-tracked session is
// a no-op.
func (b *SessionBroadcaster) Track(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	if _, ok := b.sessions[sessionID]; ok {
		b.mu.Unlock()
		return nil
	}
	w := &sessionWatch{}
	b.sessions[sessionID] = w
	b.mu.Unlock()

	rosterSub, err := b.membership.SubscribeRoster(ctx, sessionID, func(r lobby.Roster) {
		w.mu.Lock()
		w.roster = r
		w.mu.Unlock()
		b.emit(sessionID, EventTypeRosterUpdate, rosterPayload(r))
		b.emitProgress(sessionID, w)
	})
	if err != nil {
		b.Untrack(sessionID)
		return err
	}
	w.subs = append(w.subs, rosterSub)

	waitingSub, err := b.membership.SubscribeWaiting(ctx, sessionID, func(waiting lobby.Waiting) {
		b.emit(sessionID, EventTypeWaitingUpdate, waitingPayload(waiting))
	})
	if err != nil {
		b.Untrack(sessionID)
		return err
	}
	w.subs = append(w.subs, waitingSub)

	countSub, err := b.gate.SubscribeCount(ctx, sessionID, func(count int) {
		w.mu.Lock()
		w.count = count
		w.mu.Unlock()
		b.emitProgress(sessionID, w)
	})
	if err != nil {
		b.Untrack(sessionID)
		return err
	}
	w.subs = append(w.subs, countSub)

	log.Info().Str("session_id", sessionID).Msg("tracking session")
	return nil
}

// Untrack closes the session's watches.
func (b *SessionBroadcaster) Untrack(sessionID string) {
	b.mu.Lock()
	w, ok := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()
	if !ok {
		return
	}
	for _, sub := range w.subs {
		sub.Close()
	}
	log.Info().Str("session_id", sessionID).Msg("stopped tracking session")
}

// Close untracks every session.
func (b *SessionBroadcaster) Close() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.Untrack(id)
	}
}

// emitProgress publishes the submission count against the threshold, and a
// one-shot session_ready event when the threshold is first crossed.
func (b *SessionBroadcaster) emitProgress(sessionID string, w *sessionWatch) {
	w.mu.Lock()
	count := w.count
	required := lobby.RequiredCount(len(w.roster))
	ready := len(w.roster) > 0 && lobby.IsReady(count, required)
	becameReady := ready && !w.ready
	w.ready = ready
	w.mu.Unlock()

	b.emit(sessionID, EventTypeWordCount, WordCountPayload{Count: count, Required: required, Ready: ready})
	if becameReady {
		b.emit(sessionID, EventTypeSessionReady, WordCountPayload{Count: count, Required: required, Ready: true})
	}
}

func (b *SessionBroadcaster) emit(sessionID string, eventType EventType, payload interface{}) {
	event, err := NewLobbyEvent(sessionID, eventType, payload)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("event_type", string(eventType)).
			Msg("failed to build lobby event")
		return
	}
	b.sink.Broadcast(sessionID, event)
}

func rosterPayload(r lobby.Roster) RosterUpdatePayload {
	players := make([]lobby.PlayerRef, 0, len(r))
	for key, name := range r {
		players = append(players, lobby.PlayerRef{Key: key, Name: name})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Key < players[j].Key })
	return RosterUpdatePayload{Players: players}
}

func waitingPayload(w lobby.Waiting) WaitingUpdatePayload {
	keys := make([]string, 0, len(w))
	for key := range w {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return WaitingUpdatePayload{PlayerKeys: keys}
}
