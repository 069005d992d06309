package lobby

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fishbowl/internal/store"
)

// PlayerRef identifies a player within a session: the store-generated
// roster key plus the display name the player joined with.
type PlayerRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Roster maps roster keys to display names.
type Roster map[string]string

// Waiting maps the roster keys of players who have not submitted words yet
// to their display names. Always a subset of the roster.
type Waiting map[string]string

// Has reports whether the player is still waiting.
func (w Waiting) Has(playerKey string) bool {
	_, ok := w[playerKey]
	return ok
}

// MembershipTracker maintains the live roster of a session and each
// player's waiting flag, driven by store subscriptions.
type MembershipTracker struct {
	store store.Store
}

// NewMembershipTracker creates a tracker on top of the given store.
func NewMembershipTracker(st store.Store) *MembershipTracker {
	return &MembershipTracker{store: st}
}

// Join registers a new player in the session roster and marks them as
// waiting. The roster key is generated by the store and returned to the
// caller; a failed waiting-flag write is logged and swallowed because the
// roster entry, the authoritative membership record, already exists.
func (t *MembershipTracker) Join(ctx context.Context, sessionID, name string) (PlayerRef, error) {
	key, err := t.store.Push(ctx, PlayersPath(sessionID), name)
	if err != nil {
		return PlayerRef{}, fmt.Errorf("join session %s: %w", sessionID, err)
	}

	if err := t.store.Set(ctx, WaitingPlayerPath(sessionID, key), name); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("player_key", key).
			Msg("failed to mark joined player as waiting")
	}

	log.Info().
		Str("session_id", sessionID).
		Str("player_key", key).
		Str("name", name).
		Msg("player joined session")
	return PlayerRef{Key: key, Name: name}, nil
}

// SubscribeRoster invokes onChange with the full roster now and after every
// membership change. The returned subscription must be closed when the
// caller is done; a leaked watch keeps firing against removed sessions with
// empty rosters, which is harmless but wasteful.
func (t *MembershipTracker) SubscribeRoster(ctx context.Context, sessionID string, onChange func(Roster)) (*store.Subscription, error) {
	sub, err := t.store.Subscribe(ctx, PlayersPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("subscribe roster %s: %w", sessionID, err)
	}
	go func() {
		for snap := range sub.Updates() {
			onChange(Roster(snap.Children))
		}
	}()
	return sub, nil
}

// SubscribeWaiting invokes onChange with the current waiting set now and
// after every change, until the subscription is closed.
func (t *MembershipTracker) SubscribeWaiting(ctx context.Context, sessionID string, onChange func(Waiting)) (*store.Subscription, error) {
	sub, err := t.store.Subscribe(ctx, WaitingPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("subscribe waiting %s: %w", sessionID, err)
	}
	go func() {
		for snap := range sub.Updates() {
			onChange(Waiting(snap.Children))
		}
	}()
	return sub, nil
}
