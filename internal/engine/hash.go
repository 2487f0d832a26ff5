package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalTile/canonicalActor give the payload a JSON-stable shape
// instead of hashing map iteration order directly.
type canonicalTile struct {
	X, Y  int
	Color string
}

type canonicalActorPublic struct {
	ID     string
	X, Y   int
	Facing Facing
}

type canonicalAdjudication struct {
	SuperTickID   int64
	SelectedTiles []TileKey
	Rationale     string
	Feedback      string
}

type canonicalPayload struct {
	SuperTickID      int64
	Width, Height    int
	Tiles            []canonicalTile
	Actors           []canonicalActorPublic
	Goal             string
	LastAdjudication *canonicalAdjudication
}

// ContextHash computes the stable fingerprint of the agent-visible payload
// for snapshot S(n) — spec §4.3: "a function of the payload exposed to
// agents ... (supertick_id, width, height, sorted tiles, sorted actors'
// public fields, goal, last_adjudication)". The wire format borrows the
// original implementation's "sha256:<hex>" convention (§11.3 of
// SPEC_FULL), truncated to 16 hex characters exactly as the original does.
func ContextHash(w *World) string {
	payload := canonicalPayload{
		SuperTickID: w.SuperTickID,
		Width:       w.Width,
		Height:      w.Height,
		Goal:        w.Goal,
	}

	tileKeys := make([]TileKey, 0, len(w.Tiles))
	for k := range w.Tiles {
		tileKeys = append(tileKeys, k)
	}
	sort.Slice(tileKeys, func(i, j int) bool {
		if tileKeys[i].Y != tileKeys[j].Y {
			return tileKeys[i].Y < tileKeys[j].Y
		}
		return tileKeys[i].X < tileKeys[j].X
	})
	for _, k := range tileKeys {
		payload.Tiles = append(payload.Tiles, canonicalTile{X: k.X, Y: k.Y, Color: w.Tiles[k]})
	}

	for _, id := range w.SortedActorIDs() {
		a := w.Actors[id]
		payload.Actors = append(payload.Actors, canonicalActorPublic{ID: a.ID, X: a.X, Y: a.Y, Facing: a.Facing})
	}

	if w.LastAdjudication != nil {
		tiles := append([]TileKey{}, w.LastAdjudication.SelectedTiles...)
		sort.Slice(tiles, func(i, j int) bool {
			if tiles[i].Y != tiles[j].Y {
				return tiles[i].Y < tiles[j].Y
			}
			return tiles[i].X < tiles[j].X
		})
		payload.LastAdjudication = &canonicalAdjudication{
			SuperTickID:   w.LastAdjudication.SuperTickID,
			SelectedTiles: tiles,
			Rationale:     w.LastAdjudication.Rationale,
			Feedback:      w.LastAdjudication.Feedback,
		}
	}

	// json.Marshal on a struct with fixed field order is deterministic —
	// no map is serialized directly, so no extra canonicalization pass is
	// needed beyond the explicit sorts above.
	b, err := json.Marshal(payload)
	if err != nil {
		// payload is built entirely from concrete structs with no cycles
		// or unsupported types; Marshal cannot fail here.
		panic("engine: context payload failed to marshal: " + err.Error())
	}

	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])[:16]
}
