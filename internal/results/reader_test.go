package results

import (
	"context"
	"errors"
	"testing"

	"github.com/mcdev12/fishbowl/internal/lobby"
	"github.com/mcdev12/fishbowl/internal/store"
)

func TestReadOutcome(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	st.Set(ctx, lobby.ScorePath("G1")+"/team1", "21")
	st.Set(ctx, lobby.ScorePath("G1")+"/team2", "17")

	outcome, err := NewReader(st).ReadOutcome(ctx, "G1")
	if err != nil {
		t.Fatalf("ReadOutcome returned error: %v", err)
	}
	if outcome.Team1 != 21 || outcome.Team2 != 17 {
		t.Fatalf("expected 21/17, got %+v", outcome)
	}
}

func TestReadOutcomeMissingSession(t *testing.T) {
	st := store.NewMemory()

	_, err := NewReader(st).ReadOutcome(context.Background(), "G1")
	var incomplete *IncompleteDataError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteDataError, got %v", err)
	}
}

func TestReadOutcomePartialScore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	st.Set(ctx, lobby.ScorePath("G1")+"/team1", "21")

	_, err := NewReader(st).ReadOutcome(ctx, "G1")
	var incomplete *IncompleteDataError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteDataError for partial score, got %v", err)
	}
	if incomplete.Got != 1 || incomplete.Want != MinScoreFields {
		t.Fatalf("unexpected field counts: %+v", incomplete)
	}
}

func TestReadOutcomeNonNumericScore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	st.Set(ctx, lobby.ScorePath("G1")+"/team1", "21")
	st.Set(ctx, lobby.ScorePath("G1")+"/team2", "garbage")

	_, err := NewReader(st).ReadOutcome(ctx, "G1")
	var incomplete *IncompleteDataError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteDataError for bad score, got %v", err)
	}
}

func TestReadOutcomeIgnoresExtraFields(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	st.Set(ctx, lobby.ScorePath("G1")+"/team1", "3")
	st.Set(ctx, lobby.ScorePath("G1")+"/team2", "9")
	st.Set(ctx, lobby.ScorePath("G1")+"/round", "final")

	outcome, err := NewReader(st).ReadOutcome(ctx, "G1")
	if err != nil {
		t.Fatalf("ReadOutcome returned error: %v", err)
	}
	if outcome.Team1 != 3 || outcome.Team2 != 9 {
		t.Fatalf("expected 3/9, got %+v", outcome)
	}
}
