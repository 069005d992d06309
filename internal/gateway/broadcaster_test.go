package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/fishbowl/internal/lobby"
	"github.com/mcdev12/fishbowl/internal/store"
)

type captureSink struct {
	mu     sync.Mutex
	events []*LobbyEvent
}

func (s *captureSink) Broadcast(sessionID string, event *LobbyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) find(eventType EventType) *LobbyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == eventType {
			return s.events[i]
		}
	}
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func awaitEvent(t *testing.T, sink *captureSink, eventType EventType, match func(*LobbyEvent) bool) *LobbyEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev := sink.find(eventType); ev != nil && (match == nil || match(ev)) {
			return ev
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event", eventType)
	return nil
}

func newBroadcaster(st store.Store, sink EventSink) (*SessionBroadcaster, *lobby.SessionLifecycle) {
	membership := lobby.NewMembershipTracker(st)
	gate := lobby.NewSubmissionGate(st)
	return NewSessionBroadcaster(membership, gate, sink), lobby.NewSessionLifecycle(st, membership, gate)
}

func TestBroadcasterEmitsRosterAndWaiting(t *testing.T) {
	st := store.NewMemory()
	sink := &captureSink{}
	b, lc := newBroadcaster(st, sink)
	ctx := context.Background()

	if err := b.Track(ctx, "G1"); err != nil {
		t.Fatalf("Track returned error: %v", err)
	}
	defer b.Close()

	player, err := lc.Join(ctx, "G1", "Alice")
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}

	ev := awaitEvent(t, sink, EventTypeRosterUpdate, func(ev *LobbyEvent) bool {
		var payload RosterUpdatePayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return false
		}
		return len(payload.Players) == 1 && payload.Players[0].Name == "Alice"
	})
	if ev.SessionID != "G1" {
		t.Fatalf("expected session G1, got %q", ev.SessionID)
	}

	awaitEvent(t, sink, EventTypeWaitingUpdate, func(ev *LobbyEvent) bool {
		var payload WaitingUpdatePayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return false
		}
		return len(payload.PlayerKeys) == 1 && payload.PlayerKeys[0] == player.Key
	})
}

func TestBroadcasterEmitsSessionReady(t *testing.T) {
	st := store.NewMemory()
	sink := &captureSink{}
	b, lc := newBroadcaster(st, sink)
	ctx := context.Background()

	if err := b.Track(ctx, "G1"); err != nil {
		t.Fatalf("Track returned error: %v", err)
	}
	defer b.Close()

	player, _ := lc.Join(ctx, "G1", "Alice")
	if err := lc.SubmitWords(ctx, "G1", player.Key, []string{"cat", "dog"}); err != nil {
		t.Fatalf("SubmitWords returned error: %v", err)
	}

	awaitEvent(t, sink, EventTypeSessionReady, nil)
	awaitEvent(t, sink, EventTypeWordCount, func(ev *LobbyEvent) bool {
		var payload WordCountPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return false
		}
		return payload.Count == 2 && payload.Required == 2 && payload.Ready
	})
}

func TestTrackIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	sink := &captureSink{}
	b, _ := newBroadcaster(st, sink)
	ctx := context.Background()

	if err := b.Track(ctx, "G1"); err != nil {
		t.Fatalf("first Track: %v", err)
	}
	if err := b.Track(ctx, "G1"); err != nil {
		t.Fatalf("second Track: %v", err)
	}
	defer b.Close()

	b.mu.Lock()
	n := len(b.sessions)
	b.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected a single tracked session, got %d", n)
	}
}

func TestUntrackStopsDelivery(t *testing.T) {
	st := store.NewMemory()
	sink := &captureSink{}
	b, lc := newBroadcaster(st, sink)
	ctx := context.Background()

	if err := b.Track(ctx, "G1"); err != nil {
		t.Fatalf("Track returned error: %v", err)
	}
	lc.Join(ctx, "G1", "Alice")
	awaitEvent(t, sink, EventTypeRosterUpdate, nil)

	b.Untrack("G1")
	time.Sleep(50 * time.Millisecond)
	before := sink.count()

	lc.Join(ctx, "G1", "Bob")
	time.Sleep(50 * time.Millisecond)
	if after := sink.count(); after != before {
		t.Fatalf("events delivered after Untrack: %d -> %d", before, after)
	}
}
