package results

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mcdev12/fishbowl/internal/lobby"
	"github.com/mcdev12/fishbowl/internal/store"
)

// MinScoreFields is how many populated score fields a finished session
// must have before the outcome is trusted: one per team.
const MinScoreFields = 2

// Outcome is the final score of a terminated session.
type Outcome struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

// IncompleteDataError means the score snapshot is missing fields. Callers
// treat the session as not finished and fall back to a safe view instead
// of rendering a partial or zero score.
type IncompleteDataError struct {
	Path string
	Got  int
	Want int
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("incomplete data at %s: %d of %d fields populated", e.Path, e.Got, e.Want)
}

// Reader performs the one-shot outcome read for a terminated session.
type Reader struct {
	store     store.Store
	minFields int
}

// NewReader creates a Reader with the default completeness threshold.
func NewReader(st store.Store) *Reader {
	return &Reader{store: st, minFields: MinScoreFields}
}

// ReadOutcome reads and validates the session's final score.
func (r *Reader) ReadOutcome(ctx context.Context, sessionID string) (Outcome, error) {
	path := lobby.ScorePath(sessionID)
	snap, err := r.store.Get(ctx, path)
	if err != nil {
		return Outcome{}, fmt.Errorf("read outcome %s: %w", sessionID, err)
	}
	if got := snap.PopulatedFields(); got < r.minFields {
		return Outcome{}, &IncompleteDataError{Path: path, Got: got, Want: r.minFields}
	}

	team1, err := scoreField(snap, "team1")
	if err != nil {
		return Outcome{}, &IncompleteDataError{Path: path, Got: snap.PopulatedFields(), Want: r.minFields}
	}
	team2, err := scoreField(snap, "team2")
	if err != nil {
		return Outcome{}, &IncompleteDataError{Path: path, Got: snap.PopulatedFields(), Want: r.minFields}
	}
	return Outcome{Team1: team1, Team2: team2}, nil
}

func scoreField(snap store.Snapshot, team string) (int, error) {
	raw, ok := snap.Children[team]
	if !ok {
		return 0, fmt.Errorf("missing %s score", team)
	}
	return strconv.Atoi(raw)
}
