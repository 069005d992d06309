package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/fishbowl/internal/store"
)

func TestJoinAddsRosterEntryAndWaitingFlag(t *testing.T) {
	st := store.NewMemory()
	tracker := NewMembershipTracker(st)
	ctx := context.Background()

	player, err := tracker.Join(ctx, "G1", "Alice")
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if player.Key == "" {
		t.Fatal("expected a generated player key")
	}
	if player.Name != "Alice" {
		t.Fatalf("expected name Alice, got %q", player.Name)
	}

	roster, _ := st.Get(ctx, PlayersPath("G1"))
	if roster.Children[player.Key] != "Alice" {
		t.Fatalf("expected roster entry for Alice, got %v", roster.Children)
	}

	waiting, _ := st.Get(ctx, WaitingPath("G1"))
	if waiting.Children[player.Key] != "Alice" {
		t.Fatalf("expected waiting flag for Alice, got %v", waiting.Children)
	}
}

func TestJoinKeysAreDistinctPerPlayer(t *testing.T) {
	st := store.NewMemory()
	tracker := NewMembershipTracker(st)
	ctx := context.Background()

	alice, _ := tracker.Join(ctx, "G1", "Alice")
	bob, _ := tracker.Join(ctx, "G1", "Bob")
	if alice.Key == bob.Key {
		t.Fatalf("expected distinct keys, both got %q", alice.Key)
	}
}

func TestSubscribeRosterDeliversChanges(t *testing.T) {
	st := store.NewMemory()
	tracker := NewMembershipTracker(st)
	ctx := context.Background()

	var mu sync.Mutex
	var latest Roster
	sub, err := tracker.SubscribeRoster(ctx, "G1", func(r Roster) {
		mu.Lock()
		latest = r
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SubscribeRoster returned error: %v", err)
	}
	defer sub.Close()

	player, _ := tracker.Join(ctx, "G1", "Alice")
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest[player.Key] == "Alice"
	}, "roster subscription never delivered Alice")
}

func TestSubscribeWaitingClearsAfterRemoval(t *testing.T) {
	st := store.NewMemory()
	tracker := NewMembershipTracker(st)
	ctx := context.Background()

	player, _ := tracker.Join(ctx, "G1", "Alice")

	var mu sync.Mutex
	var latest Waiting
	delivered := false
	sub, err := tracker.SubscribeWaiting(ctx, "G1", func(w Waiting) {
		mu.Lock()
		latest = w
		delivered = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SubscribeWaiting returned error: %v", err)
	}
	defer sub.Close()

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered && latest.Has(player.Key)
	}, "waiting subscription never delivered Alice")

	st.Remove(ctx, WaitingPlayerPath("G1", player.Key))
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !latest.Has(player.Key)
	}, "waiting subscription never cleared Alice")
}

func TestClosedSubscriptionStopsCallbacks(t *testing.T) {
	st := store.NewMemory()
	tracker := NewMembershipTracker(st)
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	sub, err := tracker.SubscribeRoster(ctx, "G1", func(Roster) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SubscribeRoster returned error: %v", err)
	}

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	}, "initial roster delivery never arrived")

	sub.Close()
	mu.Lock()
	before := calls
	mu.Unlock()

	tracker.Join(ctx, "G1", "Bob")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	after := calls
	mu.Unlock()
	if after != before {
		t.Fatalf("callback fired after Close: %d -> %d", before, after)
	}
}
