// Package engine implements the BSP tick state machine: snapshot freezing,
// action intake and validation, deterministic merge, and the context
// (HUD) builder, all scoped to one namespace's World over its Store.
package engine

import "sort"

// Phase is one of the states in the tick state machine (spec §4.3).
type Phase string

const (
	PhaseSetup             Phase = "SETUP"
	PhaseCollect           Phase = "COLLECT"
	PhaseMerge             Phase = "MERGE"
	PhaseBroadcast         Phase = "BROADCAST"
	PhasePausedForScoring  Phase = "PAUSED_FOR_SCORING"
	PhasePaused            Phase = "PAUSED"
)

// Facing is one of the four cardinal directions an actor can face.
type Facing string

const (
	FacingN Facing = "N"
	FacingS Facing = "S"
	FacingE Facing = "E"
	FacingW Facing = "W"
)

// Intent is what an agent asked for (spec §4.5).
type Intent string

const (
	IntentMove  Intent = "MOVE"
	IntentPaint Intent = "PAINT"
	IntentSpeak Intent = "SPEAK"
	IntentWait  Intent = "WAIT"
	IntentSkip  Intent = "SKIP"
)

// Outcome is what the engine resolved an intent to (spec §4.6).
type Outcome string

const (
	OutcomeSuccess     Outcome = "SUCCESS"
	OutcomeInvalid     Outcome = "INVALID"
	OutcomeConflictLost Outcome = "CONFLICT_LOST"
	OutcomeTimeout     Outcome = "TIMEOUT"
	OutcomeNoOp        Outcome = "NO_OP"
)

// BackgroundColor is the color of an unpainted tile (spec §11.6: the
// original fills every cell with this on init_world and tile_history never
// logs that initial fill).
const BackgroundColor = "#FFFFFF"

// Actor mirrors the spec §3 Actor type, with scopes as a set for O(1)
// membership checks.
type Actor struct {
	ID                 string
	secret             string
	X, Y               int
	Facing             Facing
	Scopes             map[Intent]bool
	CustomInstructions string
	Points             int
	Eliminated         bool
	EliminatedAt       int64
}

// HasScope reports whether the actor is permitted to submit intent.
func (a *Actor) HasScope(i Intent) bool { return a.Scopes != nil && a.Scopes[i] }

// TileKey identifies one grid cell.
type TileKey struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// World is the in-memory authoritative cache for the current tick,
// reconstructible from Store (spec §4.2). The engine treats it as a
// write-through projection: every mutation is committed to Store inside
// the same transaction before becoming visible here.
type World struct {
	Namespace string
	Width     int
	Height    int

	SuperTickID int64
	Phase       Phase
	Epoch       int64
	Goal        string

	VisibilityRadius int // 0 means full-grid visibility (spec §9, §12)

	Tiles  map[TileKey]string
	Actors map[string]*Actor

	LastAdjudication *AdjudicationSummary
}

// AdjudicationSummary is the last committed scoring round, surfaced in the
// HUD's LAST_ADJUDICATION section.
type AdjudicationSummary struct {
	SuperTickID   int64
	SelectedTiles []TileKey
	Rationale     string
	Feedback      string
}

// SortedActorIDs returns actor ids in deterministic (lexicographic) order
// — spec §9: "iteration order over actors during context hashing must be
// deterministic."
func (w *World) SortedActorIDs() []string {
	ids := make([]string, 0, len(w.Actors))
	for id := range w.Actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NonEliminatedActorIDs returns the registered, non-eliminated actor set,
// sorted, used both for TIMEOUT fill and completeness checks.
func (w *World) NonEliminatedActorIDs() []string {
	var ids []string
	for id, a := range w.Actors {
		if !a.Eliminated {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// InBounds reports whether (x, y) lies within the grid.
func (w *World) InBounds(x, y int) bool {
	return x >= 0 && x < w.Width && y >= 0 && y < w.Height
}

// TileColor returns the color at (x, y), defaulting to BackgroundColor for
// unpainted cells.
func (w *World) TileColor(x, y int) string {
	if c, ok := w.Tiles[TileKey{X: x, Y: y}]; ok {
		return c
	}
	return BackgroundColor
}

// ActorAt returns the actor occupying (x, y), if any.
func (w *World) ActorAt(x, y int) *Actor {
	for _, a := range w.Actors {
		if a.X == x && a.Y == y {
			return a
		}
	}
	return nil
}
