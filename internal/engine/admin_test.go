package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/monument-sim/monument/internal/store"
)

// newPausedEngine starts a real Engine whose world begins in PAUSED, so
// Run's loop only ever services admin calls — exactly the surface this file
// exercises, without needing a live COLLECT/MERGE cycle underneath it.
func newPausedEngine(t *testing.T) (*Engine, context.CancelFunc) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ns.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	w := &World{
		Namespace: "test", Width: 10, Height: 10, Phase: PhasePaused,
		Tiles: map[TileKey]string{}, Actors: map[string]*Actor{},
	}
	e := NewEngine("test", s, w, Config{CollectTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { e.Run(ctx); close(done) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("engine.Run did not exit after cancel")
		}
	})
	return e, cancel
}

func TestRegisterActor_DefaultsAndOverrides(t *testing.T) {
	e, _ := newPausedEngine(t)
	ctx := context.Background()

	res, err := e.RegisterActor(ctx, RegisterActorRequest{ActorID: "alice", X: 1, Y: 2})
	if err != nil {
		t.Fatalf("RegisterActor: %v", err)
	}
	if res.Secret == "" {
		t.Fatal("expected an auto-generated secret")
	}

	w, _ := e.Snapshot()
	a := w.Actors["alice"]
	if a == nil {
		t.Fatal("actor not present after registration")
	}
	if a.Facing != FacingN {
		t.Fatalf("default facing = %s, want N", a.Facing)
	}
	for _, intent := range defaultScopes {
		if !a.HasScope(intent) {
			t.Fatalf("missing default scope %s", intent)
		}
	}

	res2, err := e.RegisterActor(ctx, RegisterActorRequest{ActorID: "bob", Secret: "fixed-secret"})
	if err != nil {
		t.Fatalf("RegisterActor(bob): %v", err)
	}
	if res2.Secret != "fixed-secret" {
		t.Fatalf("caller-supplied secret not honored: %q", res2.Secret)
	}
}

func TestUpdateActorScopesAndInstructions(t *testing.T) {
	e, _ := newPausedEngine(t)
	ctx := context.Background()
	if _, err := e.RegisterActor(ctx, RegisterActorRequest{ActorID: "alice", Scopes: []Intent{IntentWait}}); err != nil {
		t.Fatalf("RegisterActor: %v", err)
	}

	if err := e.UpdateActorScopes(ctx, UpdateActorScopesRequest{ActorID: "alice", Scopes: []Intent{IntentMove, IntentSpeak}}); err != nil {
		t.Fatalf("UpdateActorScopes: %v", err)
	}
	if err := e.UpdateActorInstructions(ctx, "alice", "paint the north wall"); err != nil {
		t.Fatalf("UpdateActorInstructions: %v", err)
	}

	w, _ := e.Snapshot()
	a := w.Actors["alice"]
	if a.HasScope(IntentWait) || !a.HasScope(IntentMove) || !a.HasScope(IntentSpeak) {
		t.Fatalf("scopes not replaced wholesale: %+v", a.Scopes)
	}
	if a.CustomInstructions != "paint the north wall" {
		t.Fatalf("instructions = %q", a.CustomInstructions)
	}
}

func TestEliminateActor_SoftDeleteSurvivesVsUnregisterHardDelete(t *testing.T) {
	e, _ := newPausedEngine(t)
	ctx := context.Background()
	for _, id := range []string{"alice", "bob"} {
		if _, err := e.RegisterActor(ctx, RegisterActorRequest{ActorID: id}); err != nil {
			t.Fatalf("RegisterActor(%s): %v", id, err)
		}
	}

	if err := e.EliminateActor(ctx, "alice"); err != nil {
		t.Fatalf("EliminateActor: %v", err)
	}
	w, _ := e.Snapshot()
	a := w.Actors["alice"]
	if a == nil || !a.Eliminated || a.EliminatedAt == 0 {
		t.Fatalf("eliminated actor should survive in the map with Eliminated set: %+v", a)
	}
	// Eliminating twice is a no-op, not an error.
	if err := e.EliminateActor(ctx, "alice"); err != nil {
		t.Fatalf("re-EliminateActor: %v", err)
	}

	if err := e.UnregisterActor(ctx, "bob"); err != nil {
		t.Fatalf("UnregisterActor: %v", err)
	}
	w, _ = e.Snapshot()
	if _, ok := w.Actors["bob"]; ok {
		t.Fatal("unregistered actor should be removed from the map entirely")
	}
}

func TestEliminateActor_UnknownActor(t *testing.T) {
	e, _ := newPausedEngine(t)
	err := e.EliminateActor(context.Background(), "ghost")
	assertCode(t, err, CodeUnknownActor)
}

func TestRegisterAndUnregisterActor_RefreshContextHash(t *testing.T) {
	e, _ := newPausedEngine(t)
	ctx := context.Background()

	_, before := e.Snapshot()
	if _, err := e.RegisterActor(ctx, RegisterActorRequest{ActorID: "alice", X: 1, Y: 2}); err != nil {
		t.Fatalf("RegisterActor: %v", err)
	}
	_, afterRegister := e.Snapshot()
	if afterRegister == before {
		t.Fatal("context hash did not change after RegisterActor added a new actor")
	}

	if err := e.UnregisterActor(ctx, "alice"); err != nil {
		t.Fatalf("UnregisterActor: %v", err)
	}
	_, afterUnregister := e.Snapshot()
	if afterUnregister == afterRegister {
		t.Fatal("context hash did not change after UnregisterActor removed an actor")
	}
	w, _ := e.Snapshot()
	if ContextHash(w) != afterUnregister {
		t.Fatal("stored context hash is stale relative to a freshly computed one")
	}
}

func TestRegenerateActorSecret_Rotates(t *testing.T) {
	e, _ := newPausedEngine(t)
	ctx := context.Background()
	first, err := e.RegisterActor(ctx, RegisterActorRequest{ActorID: "alice"})
	if err != nil {
		t.Fatalf("RegisterActor: %v", err)
	}
	newSecret, err := e.RegenerateActorSecret(ctx, "alice")
	if err != nil {
		t.Fatalf("RegenerateActorSecret: %v", err)
	}
	if newSecret == first.Secret {
		t.Fatal("expected a fresh secret")
	}
	if newSecret == "" {
		t.Fatal("empty secret after regeneration")
	}
}
