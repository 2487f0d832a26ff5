package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/monument-sim/monument/internal/store"
)

// DefaultEpoch is used when a freshly created namespace's meta table omits
// an explicit epoch override.
const DefaultEpoch = 10

// LoadWorld reconstructs the in-memory World from Store — the "write-
// through projection" the engine treats as authoritative only inside one
// tick's lifetime (spec §4.2).
func LoadWorld(ctx context.Context, namespace string, s *store.Store) (*World, error) {
	var w *World
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		meta, err := store.LoadMeta(ctx, tx)
		if err != nil {
			return err
		}
		if len(meta) == 0 {
			return newErr(CodeInternal, "namespace %q store has no meta row; bootstrap was skipped", namespace)
		}

		w = &World{Namespace: namespace, Tiles: map[TileKey]string{}, Actors: map[string]*Actor{}}
		w.Width = metaInt(meta, "width", 64)
		w.Height = metaInt(meta, "height", 64)
		w.SuperTickID = int64(metaInt(meta, "supertick_id", 0))
		w.Phase = Phase(metaString(meta, "phase", string(PhaseSetup)))
		w.Epoch = int64(metaInt(meta, "epoch", DefaultEpoch))
		w.Goal = metaString(meta, "goal", "")
		w.VisibilityRadius = metaInt(meta, "visibility_radius", 0)

		tiles, err := store.LoadTiles(ctx, tx)
		if err != nil {
			return err
		}
		for _, t := range tiles {
			if t.Color == BackgroundColor {
				continue
			}
			w.Tiles[TileKey{X: t.X, Y: t.Y}] = t.Color
		}

		actors, err := store.LoadActors(ctx, tx)
		if err != nil {
			return err
		}
		for _, a := range actors {
			actor, err := fromActorRow(a)
			if err != nil {
				return err
			}
			w.Actors[actor.ID] = actor
		}

		round, ok, err := store.LoadLastScoringRound(ctx, tx)
		if err != nil {
			return err
		}
		if ok {
			w.LastAdjudication, err = adjudicationFromRow(round)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func metaInt(meta map[string]string, key string, def int) int {
	v, ok := meta[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func metaString(meta map[string]string, key, def string) string {
	v, ok := meta[key]
	if !ok {
		return def
	}
	return v
}

func fromActorRow(a store.ActorRow) (*Actor, error) {
	var scopeList []string
	if err := json.Unmarshal([]byte(a.ScopesJSON), &scopeList); err != nil {
		return nil, newErr(CodeInternal, "actor %q has malformed scopes_json: %v", a.ID, err)
	}
	scopes := map[Intent]bool{}
	for _, s := range scopeList {
		scopes[Intent(s)] = true
	}
	actor := &Actor{
		ID:                 a.ID,
		secret:             a.Secret,
		X:                  a.X,
		Y:                  a.Y,
		Facing:             Facing(a.Facing),
		Scopes:             scopes,
		CustomInstructions: a.CustomInstructions,
		Points:             a.Points,
	}
	if a.EliminatedAt.Valid {
		actor.Eliminated = true
		actor.EliminatedAt = a.EliminatedAt.Int64
	}
	return actor, nil
}

func adjudicationFromRow(r store.ScoringRoundRow) (*AdjudicationSummary, error) {
	var tiles []TileKey
	if err := json.Unmarshal([]byte(r.SelectedTilesJSON), &tiles); err != nil {
		return nil, newErr(CodeInternal, "scoring round %d has malformed selected_tiles_json: %v", r.SuperTickID, err)
	}
	return &AdjudicationSummary{
		SuperTickID:   r.SuperTickID,
		SelectedTiles: tiles,
		Rationale:     r.Rationale,
		Feedback:      r.Feedback,
	}, nil
}

// BootstrapWorld initializes a fresh namespace's meta rows (tiles start
// unpainted, so no tile rows are written). It is
// a no-op if the meta table is already populated, so callers can call it
// unconditionally on first touch.
func BootstrapWorld(ctx context.Context, s *store.Store, width, height int, goal string, epoch int64, visibilityRadius int) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		meta, err := store.LoadMeta(ctx, tx)
		if err != nil {
			return err
		}
		if len(meta) > 0 {
			return nil
		}
		values := map[string]string{
			"supertick_id":      "0",
			"phase":             string(PhaseSetup),
			"goal":              goal,
			"width":             strconv.Itoa(width),
			"height":            strconv.Itoa(height),
			"epoch":             strconv.FormatInt(epoch, 10),
			"visibility_radius": strconv.Itoa(visibilityRadius),
		}
		for k, v := range values {
			if err := store.SetMeta(ctx, tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}
