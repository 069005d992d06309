package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/fishbowl/internal/lobby"
	"github.com/mcdev12/fishbowl/internal/results"
	"github.com/mcdev12/fishbowl/internal/store"
)

func TestOutcomeSessionID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/sessions/G1/outcome", "G1"},
		{"/api/sessions/G1/outcome/", "G1"},
		{"/api/sessions/G1", ""},
		{"/api/sessions//outcome", ""},
		{"/api/other/G1/outcome", ""},
	}
	for _, tt := range tests {
		if got := outcomeSessionID(tt.path); got != tt.want {
			t.Errorf("outcomeSessionID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestHandleOutcome(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	st.Set(ctx, lobby.ScorePath("G1")+"/team1", "12")
	st.Set(ctx, lobby.ScorePath("G1")+"/team2", "8")

	h := NewHandler(nil, results.NewReader(st))

	rec := httptest.NewRecorder()
	h.HandleOutcome(rec, httptest.NewRequest("GET", "/api/sessions/G1/outcome", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var outcome results.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if outcome.Team1 != 12 || outcome.Team2 != 8 {
		t.Fatalf("expected 12/8, got %+v", outcome)
	}
}

func TestHandleOutcomeIncomplete(t *testing.T) {
	st := store.NewMemory()
	h := NewHandler(nil, results.NewReader(st))

	rec := httptest.NewRecorder()
	h.HandleOutcome(rec, httptest.NewRequest("GET", "/api/sessions/G1/outcome", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 for incomplete outcome, got %d", rec.Code)
	}
}

func TestHandleOutcomeRejectsNonGet(t *testing.T) {
	h := NewHandler(nil, results.NewReader(store.NewMemory()))

	rec := httptest.NewRecorder()
	h.HandleOutcome(rec, httptest.NewRequest("POST", "/api/sessions/G1/outcome", nil))
	if rec.Code != 405 {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
