package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ns.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_FreshStoreStampsVersion(t *testing.T) {
	s := openTestStore(t)
	var version int
	if err := s.DB().QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Fatalf("got version %d, want %d", version, ExpectedSchemaVersion)
	}
}

func TestOpen_RejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ns.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.DB().Exec("PRAGMA user_version = 999"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = Open(path)
	if err == nil {
		t.Fatal("expected schema mismatch error on reopen")
	}
	se, ok := err.(*Error)
	if !ok || se.Kind != KindSchemaMismatch {
		t.Fatalf("got %v, want KindSchemaMismatch", err)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wantErr := context.Canceled
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := SetMeta(ctx, tx, "key", "value"); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}

	meta, err := LoadMeta(ctx, s.DB())
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if _, ok := meta["key"]; ok {
		t.Fatal("meta row committed despite rollback")
	}
}

func TestActorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := ActorRow{
		ID:                 "alice",
		Secret:             "s3cr3t",
		X:                  1,
		Y:                  2,
		Facing:             "N",
		ScopesJSON:         `["MOVE","WAIT"]`,
		CustomInstructions: "be helpful",
	}
	if err := s.WithTx(ctx, func(tx *sql.Tx) error { return UpsertActor(ctx, tx, row) }); err != nil {
		t.Fatalf("UpsertActor: %v", err)
	}

	got, err := GetActor(ctx, s.DB(), "alice")
	if err != nil {
		t.Fatalf("GetActor: %v", err)
	}
	if got.X != 1 || got.Y != 2 || got.Secret != "s3cr3t" || got.EliminatedAt.Valid {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	if err := s.WithTx(ctx, func(tx *sql.Tx) error { return EliminateActor(ctx, tx, "alice", 42) }); err != nil {
		t.Fatalf("EliminateActor: %v", err)
	}
	got, err = GetActor(ctx, s.DB(), "alice")
	if err != nil {
		t.Fatalf("GetActor after eliminate: %v", err)
	}
	if !got.EliminatedAt.Valid || got.EliminatedAt.Int64 != 42 {
		t.Fatalf("eliminated_at not persisted: %+v", got.EliminatedAt)
	}

	if err := s.WithTx(ctx, func(tx *sql.Tx) error { return DeleteActor(ctx, tx, "alice") }); err != nil {
		t.Fatalf("DeleteActor: %v", err)
	}
	if _, err := GetActor(ctx, s.DB(), "alice"); err != sql.ErrNoRows {
		t.Fatalf("got %v, want sql.ErrNoRows after delete", err)
	}
}

func TestAuditRangeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []struct {
		tick       int64
		actorID    string
		resultJSON string
	}{
		{1, "a", `{"outcome":"SUCCESS"}`},
		{1, "b", `{"outcome":"TIMEOUT"}`},
		{2, "a", `{"outcome":"NO_OP"}`},
	}
	for _, r := range rows {
		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			return InsertAudit(ctx, tx, r.tick, r.actorID, "MOVE", `{"intent":"MOVE"}`, r.resultJSON, "sha256:deadbeef", 100)
		})
		if err != nil {
			t.Fatalf("InsertAudit(%d,%s): %v", r.tick, r.actorID, err)
		}
	}

	got, err := LoadAuditRange(ctx, s.DB(), 1, 1)
	if err != nil {
		t.Fatalf("LoadAuditRange: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].ActorID != "a" || got[1].ActorID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}

	all, err := LoadAuditRange(ctx, s.DB(), 0, 10)
	if err != nil {
		t.Fatalf("LoadAuditRange(full): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d rows, want 3", len(all))
	}
}

func TestReplayTileHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	writes := []struct {
		tick  int64
		x, y  int
		color string
	}{
		{1, 0, 0, "#111111"},
		{2, 0, 0, "#222222"},
		{2, 1, 1, "#333333"},
	}
	for _, w := range writes {
		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			return InsertTileHistory(ctx, tx, w.x, w.y, w.tick, "actor", BackgroundColorForTest, w.color, "PAINT", 0)
		})
		if err != nil {
			t.Fatalf("InsertTileHistory: %v", err)
		}
	}

	at1, err := ReplayTileHistory(ctx, s.DB(), 1)
	if err != nil {
		t.Fatalf("ReplayTileHistory(1): %v", err)
	}
	if at1[[2]int{0, 0}] != "#111111" {
		t.Fatalf("tile at tick 1 = %q", at1[[2]int{0, 0}])
	}
	if _, ok := at1[[2]int{1, 1}]; ok {
		t.Fatal("tick-2 write leaked into tick-1 replay")
	}

	at2, err := ReplayTileHistory(ctx, s.DB(), 2)
	if err != nil {
		t.Fatalf("ReplayTileHistory(2): %v", err)
	}
	if at2[[2]int{0, 0}] != "#222222" || at2[[2]int{1, 1}] != "#333333" {
		t.Fatalf("unexpected tiles at tick 2: %+v", at2)
	}
}

// BackgroundColorForTest avoids importing the engine package just to reuse
// its BackgroundColor constant in this package's tests.
const BackgroundColorForTest = "#FFFFFF"
