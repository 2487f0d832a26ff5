package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/monument-sim/monument/internal/store"
)

func newScoringFixture(t *testing.T, cfg Config) *Engine {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ns.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	w := &World{
		Namespace: "test", Width: 10, Height: 10, SuperTickID: 10,
		Phase: PhasePausedForScoring,
		Tiles: map[TileKey]string{},
		Actors: map[string]*Actor{
			"alice": {ID: "alice", Points: 5},
			"bob":   {ID: "bob", Points: 1},
		},
	}
	return NewEngine("test", s, w, cfg)
}

func TestCommitScoringRound_AppliesPointDeltas(t *testing.T) {
	e := newScoringFixture(t, Config{})
	sub := AdjudicationSubmission{
		SelectedTiles:        []TileKey{{X: 1, Y: 1}},
		ContributionsByActor: map[string]int{"alice": 3, "bob": -1},
		Rationale:            "nice work",
	}
	if err := e.commitScoringRound(context.Background(), sub); err != nil {
		t.Fatalf("commitScoringRound: %v", err)
	}

	w, _ := e.Snapshot()
	if w.Actors["alice"].Points != 8 {
		t.Fatalf("alice points = %d, want 8", w.Actors["alice"].Points)
	}
	if w.Actors["bob"].Points != 0 {
		t.Fatalf("bob points = %d, want 0", w.Actors["bob"].Points)
	}
	if w.LastAdjudication == nil || w.LastAdjudication.Rationale != "nice work" {
		t.Fatalf("LastAdjudication not recorded: %+v", w.LastAdjudication)
	}
}

func TestCommitScoringRound_RefreshesContextHash(t *testing.T) {
	e := newScoringFixture(t, Config{})
	_, before := e.Snapshot()

	sub := AdjudicationSubmission{
		SelectedTiles: []TileKey{{X: 1, Y: 1}},
		Rationale:     "nice work",
	}
	if err := e.commitScoringRound(context.Background(), sub); err != nil {
		t.Fatalf("commitScoringRound: %v", err)
	}

	w, after := e.Snapshot()
	if after == before {
		t.Fatal("context hash did not change after a scoring round set LastAdjudication")
	}
	if ContextHash(w) != after {
		t.Fatal("stored context hash is stale relative to a freshly computed one")
	}
}

func TestCommitScoringRound_EliminatesAtOrBelowZeroWhenEnabled(t *testing.T) {
	e := newScoringFixture(t, Config{EliminateAtOrBelowZero: true})
	sub := AdjudicationSubmission{
		ContributionsByActor: map[string]int{"bob": -1}, // 1 - 1 = 0
	}
	if err := e.commitScoringRound(context.Background(), sub); err != nil {
		t.Fatalf("commitScoringRound: %v", err)
	}
	w, _ := e.Snapshot()
	if !w.Actors["bob"].Eliminated {
		t.Fatal("expected bob to be auto-eliminated at zero points")
	}
	if w.Actors["alice"].Eliminated {
		t.Fatal("alice's points never dropped to zero; should not be eliminated")
	}
}

func TestCommitScoringRound_EliminationOptOutByDefault(t *testing.T) {
	e := newScoringFixture(t, Config{}) // EliminateAtOrBelowZero defaults false
	sub := AdjudicationSubmission{
		ContributionsByActor: map[string]int{"bob": -5}, // deep negative, still opt-in only
	}
	if err := e.commitScoringRound(context.Background(), sub); err != nil {
		t.Fatalf("commitScoringRound: %v", err)
	}
	w, _ := e.Snapshot()
	if w.Actors["bob"].Eliminated {
		t.Fatal("elimination should stay opt-in; namespace did not enable it")
	}
}

func TestCommitScoringRound_RejectsEmptySubmission(t *testing.T) {
	e := newScoringFixture(t, Config{})
	err := e.commitScoringRound(context.Background(), AdjudicationSubmission{})
	assertCode(t, err, CodeMalformedAction)
}

func TestCommitScoringRound_UnknownActorContributionIsSkippedNotFatal(t *testing.T) {
	e := newScoringFixture(t, Config{})
	sub := AdjudicationSubmission{ContributionsByActor: map[string]int{"ghost": 100}}
	if err := e.commitScoringRound(context.Background(), sub); err != nil {
		t.Fatalf("commitScoringRound should tolerate an unregistered actor id: %v", err)
	}
}
