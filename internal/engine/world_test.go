package engine

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/monument-sim/monument/internal/store"
)

func TestBootstrapWorld_IsANoOpOnceMetaExists(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "ns.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	if err := BootstrapWorld(ctx, s, 8, 6, "paint the wall", 10, 0); err != nil {
		t.Fatalf("first BootstrapWorld: %v", err)
	}
	// A second call with different dimensions must not overwrite the first.
	if err := BootstrapWorld(ctx, s, 99, 99, "different goal", 50, 3); err != nil {
		t.Fatalf("second BootstrapWorld: %v", err)
	}

	w, err := LoadWorld(ctx, "arena", s)
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if w.Width != 8 || w.Height != 6 || w.Goal != "paint the wall" {
		t.Fatalf("bootstrap was not idempotent: %+v", w)
	}
}

func TestLoadWorld_RejectsUnbootstrappedStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "ns.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	_, err = LoadWorld(context.Background(), "arena", s)
	assertCode(t, err, CodeInternal)
}

func TestLoadWorld_RoundTripsActorsAndTiles(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "ns.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	if err := BootstrapWorld(ctx, s, 10, 10, "build a tower", 10, 5); err != nil {
		t.Fatalf("BootstrapWorld: %v", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.UpsertActor(ctx, tx, store.ActorRow{
			ID: "alice", Secret: "s3cret", X: 2, Y: 3, Facing: "N",
			ScopesJSON: `["MOVE","WAIT"]`, Points: 4,
		}); err != nil {
			return err
		}
		return store.UpsertActor(ctx, tx, store.ActorRow{
			ID: "bob", Secret: "b0b", X: 0, Y: 0, Facing: "S",
			ScopesJSON: `["WAIT"]`, EliminatedAt: sql.NullInt64{Valid: true, Int64: 99},
		})
	})
	if err != nil {
		t.Fatalf("seeding actors: %v", err)
	}

	w, err := LoadWorld(ctx, "arena", s)
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if w.VisibilityRadius != 5 || w.Goal != "build a tower" {
		t.Fatalf("meta not loaded correctly: %+v", w)
	}

	alice := w.Actors["alice"]
	if alice == nil || alice.X != 2 || alice.Y != 3 || alice.Points != 4 || !alice.HasScope(IntentMove) {
		t.Fatalf("alice round-trip mismatch: %+v", alice)
	}
	bob := w.Actors["bob"]
	if bob == nil || !bob.Eliminated || bob.EliminatedAt != 99 {
		t.Fatalf("bob's elimination did not round-trip: %+v", bob)
	}
}

func TestFromActorRow_RejectsMalformedScopesJSON(t *testing.T) {
	_, err := fromActorRow(store.ActorRow{ID: "alice", ScopesJSON: "not json"})
	if err == nil {
		t.Fatal("expected an error for malformed scopes_json")
	}
	assertCode(t, err, CodeInternal)
}

func TestAdjudicationFromRow_RejectsMalformedTilesJSON(t *testing.T) {
	_, err := adjudicationFromRow(store.ScoringRoundRow{SuperTickID: 1, SelectedTilesJSON: "not json"})
	if err == nil {
		t.Fatal("expected an error for malformed selected_tiles_json")
	}
	assertCode(t, err, CodeInternal)
}
