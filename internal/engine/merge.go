package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/monument-sim/monument/internal/store"
)

// mergeEntry is one actor's resolved-but-not-yet-committed intent for the
// tick being merged.
type mergeEntry struct {
	ActorID     string
	Intent      Intent
	Params      ActionParams
	Synthesized bool // TIMEOUT row, not a real submission
}

// mergeOutcome is what MERGE decided for one actor, ready to commit.
type mergeOutcome struct {
	ActorID     string
	Intent      Intent
	Outcome     Outcome
	Reason      string
	synthesized bool // no journal row exists to finalize (COLLECT-deadline TIMEOUT)
	NewX, NewY int
	NewFacing  Facing
	moved      bool
	PaintX     int
	PaintY     int
	PaintColor string
	painted    bool
	ChatText   string
	spoke      bool
}

// MergeResult summarizes one committed tick for the broadcast layer.
type MergeResult struct {
	SuperTickID int64 // the tick that was just resolved
	NextPhase   Phase
	Outcomes    []mergeOutcome
}

// Merge executes the §4.6 resolver for the tick currently in w (which the
// caller's tick state machine has already moved to PhaseMerge). It loads the journal rows committed during COLLECT,
// synthesizes TIMEOUT rows for actors who never submitted, resolves
// conflicts deterministically, and commits every effect inside one
// transaction: journal status/result, audit, tile_history, tiles, actor
// positions, chat, and the supertick_id/phase advance.
func Merge(ctx context.Context, s *store.Store, w *World, snapshotContextHash string, scoringInterval int64, scoringEnabled bool, now time.Time) (*MergeResult, error) {
	tick := w.SuperTickID

	rows, err := store.LoadJournalForTick(ctx, s.DB(), tick)
	if err != nil {
		return nil, classifyStoreErr(err)
	}

	entries := map[string]mergeEntry{}
	for _, r := range rows {
		var params ActionParams
		if err := json.Unmarshal([]byte(r.ParamsJSON), &params); err != nil {
			return nil, newErr(CodeInternal, "journal row for actor %q has malformed params_json: %v", r.ActorID, err)
		}
		entries[r.ActorID] = mergeEntry{ActorID: r.ActorID, Intent: Intent(r.Intent), Params: params}
	}

	// COLLECT deadline synthesis (spec §4.3): every registered,
	// non-eliminated actor without a journal row gets a TIMEOUT(WAIT).
	for _, id := range w.NonEliminatedActorIDs() {
		if _, ok := entries[id]; !ok {
			entries[id] = mergeEntry{ActorID: id, Intent: IntentWait, Synthesized: true}
		}
	}

	outcomes := resolve(w, entries)

	nextPhase := PhaseCollect
	nextTick := tick + 1
	if scoringEnabled && nextTick > 0 && nextTick%scoringInterval == 0 {
		nextPhase = PhasePausedForScoring
	}
	if w.Epoch > 0 && nextTick >= w.Epoch {
		nextPhase = PhasePaused
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, o := range outcomes {
			if err := commitOutcome(ctx, tx, tick, now, snapshotContextHash, o); err != nil {
				return err
			}
		}
		if err := store.SetMeta(ctx, tx, "supertick_id", strconv.FormatInt(nextTick, 10)); err != nil {
			return err
		}
		return store.SetMeta(ctx, tx, "phase", string(nextPhase))
	})
	if err != nil {
		return nil, classifyStoreErr(err)
	}

	// Mirror the committed effects onto the in-memory projection so the
	// caller doesn't need a round-trip LoadWorld to keep serving BROADCAST.
	applyToWorld(w, outcomes)
	w.SuperTickID = nextTick
	w.Phase = nextPhase

	return &MergeResult{SuperTickID: tick, NextPhase: nextPhase, Outcomes: outcomes}, nil
}

// resolve implements the deterministic priority rule and conflict classes
// from spec §4.6. It never mutates w.
func resolve(w *World, entries map[string]mergeEntry) []mergeOutcome {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	originalOccupied := map[TileKey]string{}
	for _, a := range w.Actors {
		originalOccupied[TileKey{X: a.X, Y: a.Y}] = a.ID
	}

	type moveProposal struct {
		actorID string
		dest    TileKey
		facing  Facing
	}
	var moves []moveProposal
	type paintProposal struct {
		actorID string
		dest    TileKey
		color   string
	}
	var paints []paintProposal

	outByActor := map[string]*mergeOutcome{}
	for _, id := range ids {
		e := entries[id]
		outByActor[id] = &mergeOutcome{ActorID: id, Intent: e.Intent, synthesized: e.Synthesized}
	}

	for _, id := range ids {
		e := entries[id]
		actor := w.Actors[id]
		switch e.Intent {
		case IntentMove:
			dx, dy := deltaFor(e.Params.Direction)
			dest := TileKey{X: actor.X + dx, Y: actor.Y + dy}
			moves = append(moves, moveProposal{actorID: id, dest: dest, facing: e.Params.Direction})
		case IntentPaint:
			tx, ty := actor.X, actor.Y
			if e.Params.HasTarget {
				tx, ty = e.Params.TargetX, e.Params.TargetY
			}
			paints = append(paints, paintProposal{actorID: id, dest: TileKey{X: tx, Y: ty}, color: e.Params.Color})
		case IntentSpeak:
			o := outByActor[id]
			o.Outcome, o.spoke, o.ChatText = OutcomeSuccess, true, e.Params.Message
		case IntentWait:
			o := outByActor[id]
			if e.Synthesized {
				o.Outcome, o.Reason = OutcomeTimeout, "collect deadline elapsed"
			} else {
				o.Outcome = OutcomeNoOp
			}
		case IntentSkip:
			outByActor[id].Outcome = OutcomeNoOp
		}
	}

	// Destination collision (spec §4.6): a cell occupied in S(n) by anyone
	// is off-limits to every MOVE this tick, winner or not — vacated cells
	// are never valid targets in this single-pass resolution.
	byDest := map[TileKey][]moveProposal{}
	for _, m := range moves {
		if occupant, ok := originalOccupied[m.dest]; ok && occupant != m.actorID {
			o := outByActor[m.actorID]
			o.Outcome, o.Reason = OutcomeConflictLost, "destination occupied"
			continue
		}
		byDest[m.dest] = append(byDest[m.dest], m)
	}
	for dest, group := range byDest {
		sort.Slice(group, func(i, j int) bool { return group[i].actorID < group[j].actorID })
		winner := group[0]
		o := outByActor[winner.actorID]
		o.Outcome, o.moved, o.NewX, o.NewY, o.NewFacing = OutcomeSuccess, true, dest.X, dest.Y, winner.facing
		for _, loser := range group[1:] {
			lo := outByActor[loser.actorID]
			lo.Outcome, lo.Reason = OutcomeConflictLost, "lost move conflict"
		}
	}

	// Paint collision.
	byTile := map[TileKey][]paintProposal{}
	for _, p := range paints {
		byTile[p.dest] = append(byTile[p.dest], p)
	}
	for tile, group := range byTile {
		sort.Slice(group, func(i, j int) bool { return group[i].actorID < group[j].actorID })
		winner := group[0]
		o := outByActor[winner.actorID]
		if w.TileColor(tile.X, tile.Y) == winner.color {
			o.Outcome = OutcomeNoOp
		} else {
			o.Outcome, o.painted, o.PaintX, o.PaintY, o.PaintColor = OutcomeSuccess, true, tile.X, tile.Y, winner.color
		}
		for _, loser := range group[1:] {
			lo := outByActor[loser.actorID]
			lo.Outcome, lo.Reason = OutcomeConflictLost, "lost paint conflict"
		}
	}

	out := make([]mergeOutcome, 0, len(ids))
	for _, id := range ids {
		out = append(out, *outByActor[id])
	}
	return out
}

func commitOutcome(ctx context.Context, tx *sql.Tx, tick int64, now time.Time, contextHash string, o mergeOutcome) error {
	resultJSON, err := json.Marshal(struct {
		Outcome Outcome `json:"outcome"`
		Reason  string  `json:"reason,omitempty"`
	}{o.Outcome, o.Reason})
	if err != nil {
		return newErr(CodeInternal, "marshal outcome for actor %q: %v", o.ActorID, err)
	}

	// A synthesized TIMEOUT never had a journal row inserted during
	// COLLECT (spec §4.3: the deadline fires without a submission), so
	// there is nothing to finalize there; the audit row below is its only
	// durable record.
	if !o.synthesized {
		if err := store.FinalizeJournal(ctx, tx, tick, o.ActorID, string(o.Outcome), string(resultJSON)); err != nil {
			return err
		}
	}

	// Synthesized TIMEOUT rows carry a correlation id since they have no
	// originating request to trace back to (SPEC_FULL §10: google/uuid).
	correlationID := ""
	if o.synthesized {
		correlationID = uuid.NewString()
	}
	paramsJSON, err := json.Marshal(struct {
		Intent        Intent `json:"intent"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}{o.Intent, correlationID})
	if err != nil {
		return newErr(CodeInternal, "marshal audit params for actor %q: %v", o.ActorID, err)
	}
	if err := store.InsertAudit(ctx, tx, tick, o.ActorID, string(o.Intent), string(paramsJSON), string(resultJSON), contextHash, now.Unix()); err != nil {
		return err
	}

	if o.moved {
		if err := store.UpdateActorPosition(ctx, tx, o.ActorID, o.NewX, o.NewY, string(o.NewFacing)); err != nil {
			return err
		}
		if err := store.InsertActorHistory(ctx, tx, o.ActorID, tick, o.NewX, o.NewY, string(o.NewFacing), now.Unix()); err != nil {
			return err
		}
	}

	if o.painted {
		old, err := currentTileColor(ctx, tx, o.PaintX, o.PaintY)
		if err != nil {
			return err
		}
		if err := store.UpsertTile(ctx, tx, o.PaintX, o.PaintY, o.PaintColor); err != nil {
			return err
		}
		if err := store.InsertTileHistory(ctx, tx, o.PaintX, o.PaintY, tick, o.ActorID, old, o.PaintColor, string(IntentPaint), now.Unix()); err != nil {
			return err
		}
	}

	if o.spoke {
		if err := store.InsertChat(ctx, tx, tick, o.ActorID, o.ChatText, now.Unix()); err != nil {
			return err
		}
	}

	return nil
}

func currentTileColor(ctx context.Context, tx *sql.Tx, x, y int) (string, error) {
	color, ok, err := store.GetTile(ctx, tx, x, y)
	if err != nil {
		return "", err
	}
	if !ok {
		return BackgroundColor, nil
	}
	return color, nil
}

// applyToWorld mirrors committed outcomes onto the in-memory cache so the
// caller's BROADCAST step sees the post-merge state without a reload.
func applyToWorld(w *World, outcomes []mergeOutcome) {
	for _, o := range outcomes {
		if o.moved {
			if a := w.Actors[o.ActorID]; a != nil {
				a.X, a.Y, a.Facing = o.NewX, o.NewY, o.NewFacing
			}
		}
		if o.painted {
			w.Tiles[TileKey{X: o.PaintX, Y: o.PaintY}] = o.PaintColor
		}
	}
}

