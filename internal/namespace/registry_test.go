package namespace

import (
	"context"
	"testing"
	"time"

	"github.com/monument-sim/monument/internal/engine"
)

func TestRegistry_OpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir, engine.Config{CollectTimeout: time.Second, ScoringEnabled: true, ScoringInterval: 10})
	defer reg.Close()

	ctx := context.Background()
	spec := BootstrapSpec{Width: 8, Height: 8, Goal: "paint it", Epoch: 5}

	h1, err := reg.Open(ctx, "arena", spec)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h2, err := reg.Open(ctx, "arena", BootstrapSpec{Width: 999, Height: 999})
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if h1 != h2 {
		t.Fatal("expected the same handle on repeated Open")
	}

	w, _ := h1.Engine.Snapshot()
	if w.Width != 8 || w.Height != 8 {
		t.Fatalf("bootstrap width/height overwritten by second Open's ignored spec: got %dx%d", w.Width, w.Height)
	}
}

func TestRegistry_BootstrapPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := engine.Config{CollectTimeout: time.Second, ScoringEnabled: true, ScoringInterval: 10}
	ctx := context.Background()

	func() {
		reg := NewRegistry(dir, cfg)
		defer reg.Close()
		h, err := reg.Open(ctx, "arena", BootstrapSpec{Width: 12, Height: 6, Goal: "build the tower", Epoch: 3})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		w, _ := h.Engine.Snapshot()
		if w.Goal != "build the tower" {
			t.Fatalf("goal not set: %q", w.Goal)
		}
	}()

	reg2 := NewRegistry(dir, cfg)
	defer reg2.Close()
	h2, err := reg2.Open(ctx, "arena", BootstrapSpec{Width: 1, Height: 1, Goal: "ignored on reopen"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	w2, _ := h2.Engine.Snapshot()
	if w2.Width != 12 || w2.Height != 6 || w2.Goal != "build the tower" {
		t.Fatalf("persisted bootstrap lost across reopen: %+v", w2)
	}
}

func TestRegistry_GetWithoutOpenIsMissing(t *testing.T) {
	reg := NewRegistry(t.TempDir(), engine.Config{})
	defer reg.Close()
	if _, ok := reg.Get("never-opened"); ok {
		t.Fatal("expected Get to report the namespace as not open")
	}
}

func TestRegistry_RejectsInvalidID(t *testing.T) {
	reg := NewRegistry(t.TempDir(), engine.Config{})
	defer reg.Close()
	_, err := reg.Open(context.Background(), "../escape", BootstrapSpec{})
	if err == nil {
		t.Fatal("expected an error for an invalid namespace id")
	}
	ee, ok := err.(*engine.Error)
	if !ok || ee.Code != engine.CodeInvalidNamespace {
		t.Fatalf("got %v, want CodeInvalidNamespace", err)
	}
}
