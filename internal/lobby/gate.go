package lobby

import (
	"context"
	"fmt"

	"github.com/mcdev12/fishbowl/internal/store"
)

// WordsPerPlayer is how many words each player owes the session.
const WordsPerPlayer = 2

// RequiredCount is the number of submitted words a session needs before it
// may advance.
func RequiredCount(rosterSize int) int {
	return rosterSize * WordsPerPlayer
}

// IsReady reports whether the submitted count meets the threshold. The
// count is not capped at required: a client that resubmits fresh entries
// instead of updating its existing ones can push it past the threshold, so
// callers disable further submission once a player has submitted rather
// than relying on the gate to reject.
func IsReady(count, required int) bool {
	return count >= required
}

// SubmissionGate exposes the submitted-word count of a session as a
// subscription.
type SubmissionGate struct {
	store store.Store
}

// NewSubmissionGate creates a gate on top of the given store.
func NewSubmissionGate(st store.Store) *SubmissionGate {
	return &SubmissionGate{store: st}
}

// SubscribeCount invokes onChange with the current number of submitted
// words now and whenever it changes, until the subscription is closed.
func (g *SubmissionGate) SubscribeCount(ctx context.Context, sessionID string, onChange func(int)) (*store.Subscription, error) {
	sub, err := g.store.Subscribe(ctx, WordsPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("subscribe word count %s: %w", sessionID, err)
	}
	go func() {
		for snap := range sub.Updates() {
			onChange(len(snap.Children))
		}
	}()
	return sub, nil
}

// Count reads the submitted-word count once.
func (g *SubmissionGate) Count(ctx context.Context, sessionID string) (int, error) {
	snap, err := g.store.Get(ctx, WordsPath(sessionID))
	if err != nil {
		return 0, fmt.Errorf("read word count %s: %w", sessionID, err)
	}
	return len(snap.Children), nil
}
