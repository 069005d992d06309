package lobby

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fishbowl/internal/store"
)

// SessionLifecycle orchestrates join, word submission, leave and the
// last-leaver teardown. It is the only component with multi-step side
// effects: every step is an independent store write with no cross-key
// atomicity, so failures are captured per step, logged and never retried.
type SessionLifecycle struct {
	store      store.Store
	membership *MembershipTracker
	gate       *SubmissionGate

	// wordKeys remembers, per joined player, the store keys of their
	// submitted words. Held only by the client that submitted: these keys
	// are what allow in-place edits and own-word cleanup on leave.
	mu       sync.Mutex
	wordKeys map[string][]string
}

// NewSessionLifecycle wires a lifecycle over the store and its trackers.
func NewSessionLifecycle(st store.Store, membership *MembershipTracker, gate *SubmissionGate) *SessionLifecycle {
	return &SessionLifecycle{
		store:      st,
		membership: membership,
		gate:       gate,
		wordKeys:   make(map[string][]string),
	}
}

// Join registers the player in the session.
func (l *SessionLifecycle) Join(ctx context.Context, sessionID, name string) (PlayerRef, error) {
	return l.membership.Join(ctx, sessionID, name)
}

// SubmitWords validates, normalizes and stores a player's words. Blank
// words reject the whole submission before any write. The first complete
// submission pushes new word entries and clears the player's waiting flag;
// later submissions update the same keys in place so the session's word
// count stays put while players edit.
func (l *SessionLifecycle) SubmitWords(ctx context.Context, sessionID, playerKey string, words []string) error {
	if len(words) != WordsPerPlayer {
		return &ValidationError{Reason: fmt.Sprintf("expected %d words, got %d", WordsPerPlayer, len(words))}
	}
	normalized := make([]string, len(words))
	for i, w := range words {
		trimmed := strings.TrimSpace(w)
		if trimmed == "" {
			return &ValidationError{Reason: "words cannot be blank"}
		}
		normalized[i] = strings.ToUpper(trimmed)
	}

	slot := sessionID + "/" + playerKey
	l.mu.Lock()
	keys := append([]string(nil), l.wordKeys[slot]...)
	l.mu.Unlock()
	wasComplete := len(keys) == WordsPerPlayer

	updates := make(map[string]string)
	for i, w := range normalized {
		if i < len(keys) {
			updates[keys[i]] = w
			continue
		}
		key, err := l.store.Push(ctx, WordsPath(sessionID), w)
		if err != nil {
			log.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("player_key", playerKey).
				Msg("failed to store word")
			continue
		}
		keys = append(keys, key)
	}
	if len(updates) > 0 {
		if err := l.store.Update(ctx, WordsPath(sessionID), updates); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("player_key", playerKey).
				Msg("failed to update words")
		}
	}

	l.mu.Lock()
	l.wordKeys[slot] = keys
	l.mu.Unlock()

	// The waiting flag clears exactly once, when the last owed word lands.
	if !wasComplete && len(keys) == WordsPerPlayer {
		if err := l.store.Remove(ctx, WaitingPlayerPath(sessionID, playerKey)); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("player_key", playerKey).
				Msg("failed to clear waiting flag")
		}
		log.Info().
			Str("session_id", sessionID).
			Str("player_key", playerKey).
			Msg("player submitted words")
	}
	return nil
}

// WordKeys returns the submission keys the lifecycle holds for a player.
func (l *SessionLifecycle) WordKeys(sessionID, playerKey string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.wordKeys[sessionID+"/"+playerKey]...)
}

// Leave removes the player from the session: roster entry, waiting entry,
// own words, then the last-leaver check. Steps run in order regardless of
// earlier failures, because the word keys exist only in this client's
// memory and skipping their cleanup would leak them for good. The report
// carries one result per step.
func (l *SessionLifecycle) Leave(ctx context.Context, sessionID string, player PlayerRef) CleanupReport {
	report := CleanupReport{SessionID: sessionID, Player: player}

	report.record(sessionID, "remove roster entry", l.store.Remove(ctx, PlayerPath(sessionID, player.Key)))
	report.record(sessionID, "remove waiting entry", l.store.Remove(ctx, WaitingPlayerPath(sessionID, player.Key)))

	slot := sessionID + "/" + player.Key
	l.mu.Lock()
	keys := l.wordKeys[slot]
	delete(l.wordKeys, slot)
	l.mu.Unlock()
	for _, k := range keys {
		report.record(sessionID, "remove word "+k, l.store.Remove(ctx, WordPath(sessionID, k)))
	}

	last, err := l.lastLeaver(ctx, sessionID)
	report.record(sessionID, "check remaining players", err)
	if err == nil && last {
		// Racy by design: another player leaving at the same time can also
		// observe an empty roster. Both then tear down, which is safe
		// because removals are idempotent.
		report.LastLeaver = true
		report.record(sessionID, "remove session record", l.store.Remove(ctx, GamePath(sessionID)))
		report.record(sessionID, "remove session words", l.store.Remove(ctx, WordsPath(sessionID)))
		log.Info().
			Str("session_id", sessionID).
			Str("player_key", player.Key).
			Msg("last player left, session torn down")
	}

	log.Info().
		Str("session_id", sessionID).
		Str("player_key", player.Key).
		Str("name", player.Name).
		Msg("player left session")
	return report
}

// lastLeaver re-queries the roster after this player's own removal. Empty
// means nobody is left and this client owns teardown.
func (l *SessionLifecycle) lastLeaver(ctx context.Context, sessionID string) (bool, error) {
	snap, err := l.store.QueryEqualTo(ctx, PlayersRoot(), sessionID)
	if err != nil {
		return false, err
	}
	return !snap.Exists(), nil
}

// StartGame gates the transition out of the collecting phase on submission
// completeness. The game itself starts downstream; this is the hook.
func (l *SessionLifecycle) StartGame(ctx context.Context, sessionID string) error {
	roster, err := l.store.Get(ctx, PlayersPath(sessionID))
	if err != nil {
		return fmt.Errorf("read roster %s: %w", sessionID, err)
	}
	count, err := l.gate.Count(ctx, sessionID)
	if err != nil {
		return err
	}
	required := RequiredCount(len(roster.Children))
	if !IsReady(count, required) {
		return fmt.Errorf("%w: have %d of %d words", ErrSessionNotReady, count, required)
	}
	log.Info().
		Str("session_id", sessionID).
		Int("words", count).
		Msg("session ready, starting game")
	return nil
}

// StepResult is the outcome of one cleanup step.
type StepResult struct {
	Step string
	Err  error
}

// CleanupReport aggregates the per-step outcomes of a leave sequence.
type CleanupReport struct {
	SessionID  string
	Player     PlayerRef
	Steps      []StepResult
	LastLeaver bool
}

func (r *CleanupReport) record(sessionID, step string, err error) {
	r.Steps = append(r.Steps, StepResult{Step: step, Err: err})
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("step", step).
			Msg("cleanup step failed")
	}
}

// Err returns all step failures joined, or nil if every step succeeded.
func (r CleanupReport) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Step, s.Err))
		}
	}
	return errors.Join(errs...)
}
