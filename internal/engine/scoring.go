package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/monument-sim/monument/internal/store"
)

// AdjudicationSubmission is the adjudicator payload from spec §4.8:
// "{selected_tiles, contributions_by_actor, rationale, feedback}".
type AdjudicationSubmission struct {
	SelectedTiles       []TileKey
	ContributionsByActor map[string]int
	Rationale           string
	Feedback            string
}

// commitScoringRound persists one adjudication and applies point deltas,
// called only from runPausedForScoring on the engine's serializer
// goroutine, so e.world may be mutated directly without a lock dance
// beyond the one the caller already holds implicitly (single writer).
func (e *Engine) commitScoringRound(ctx context.Context, sub AdjudicationSubmission) error {
	e.mu.RLock()
	w := e.world
	e.mu.RUnlock()

	if len(sub.ContributionsByActor) == 0 && len(sub.SelectedTiles) == 0 {
		return newErr(CodeMalformedAction, "scoring round must select at least one tile or contribution")
	}

	tilesJSON, err := json.Marshal(sub.SelectedTiles)
	if err != nil {
		return newErr(CodeInternal, "marshal selected_tiles: %v", err)
	}
	contribJSON, err := json.Marshal(sub.ContributionsByActor)
	if err != nil {
		return newErr(CodeInternal, "marshal contributions: %v", err)
	}

	now := time.Now().Unix()
	tick := w.SuperTickID

	eliminated := map[string]bool{}
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.InsertScoringRound(ctx, tx, tick, string(tilesJSON), string(contribJSON), sub.Rationale, sub.Feedback, now); err != nil {
			return err
		}
		for actorID, delta := range sub.ContributionsByActor {
			actor, ok := w.Actors[actorID]
			if !ok {
				continue // a contribution naming an unregistered actor is silently skipped, not fatal to the round
			}
			newPoints := actor.Points + delta
			if err := store.UpdateActorPoints(ctx, tx, actorID, newPoints); err != nil {
				return err
			}
			if e.cfg.EliminateAtOrBelowZero && newPoints <= 0 && !actor.Eliminated {
				if err := store.EliminateActor(ctx, tx, actorID, now); err != nil {
					return err
				}
				eliminated[actorID] = true
			}
		}
		return nil
	})
	if err != nil {
		return classifyStoreErr(err)
	}

	e.mu.Lock()
	for actorID, delta := range sub.ContributionsByActor {
		if a, ok := w.Actors[actorID]; ok {
			a.Points += delta
			if eliminated[actorID] {
				a.Eliminated = true
				a.EliminatedAt = now
			}
		}
	}
	w.LastAdjudication = &AdjudicationSummary{
		SuperTickID:   tick,
		SelectedTiles: sub.SelectedTiles,
		Rationale:     sub.Rationale,
		Feedback:      sub.Feedback,
	}
	e.mu.Unlock()
	e.refreshHash()

	return nil
}
