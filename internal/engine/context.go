package engine

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/monument-sim/monument/internal/store"
)

// Memory is one opaque recalled item surfaced in the HUD's RECALLED
// MEMORIES section (spec §6 Memory service contract).
type Memory struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// MemoryRecaller is the engine's view of the Memory service's consumed
// contract: recall(actor_id, query, k). The engine never stores memories
// itself or ranks them — it passes whatever comes back straight into the
// HUD, opaquely, per spec §6.
type MemoryRecaller interface {
	Recall(ctx context.Context, actorID, query string, k int) ([]Memory, error)
}

// TileView is one visible tile in the HUD.
type TileView struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

// ActorView is one visible actor's public fields in the HUD.
type ActorView struct {
	ID     string `json:"id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Facing Facing `json:"facing"`
}

// ChatView is one chat line in the HUD.
type ChatView struct {
	SuperTickID int64  `json:"supertick_id"`
	FromID      string `json:"from_id"`
	Message     string `json:"message"`
}

// LastTickResult is HUD section 3 (spec §4.7).
type LastTickResult struct {
	SuperTickID int64   `json:"supertick_id"`
	Intent      Intent  `json:"intent"`
	Outcome     Outcome `json:"outcome"`
	Reason      string  `json:"reason,omitempty"`
	PointDelta  int     `json:"point_delta"`
}

// AdjudicationView is HUD section 4.
type AdjudicationView struct {
	SuperTickID   int64      `json:"supertick_id"`
	SelectedTiles []TileKey  `json:"selected_tiles"`
	Rationale     string     `json:"rationale"`
	Feedback      string     `json:"feedback"`
}

// HUD is the context payload's hud field. Field order mirrors spec §4.7's
// nine required sections exactly. ContextHash covers only the world-level
// data behind the goal, last adjudication, tile and actor sections; the
// actor's scopes, last tick result, recent chat, recalled memories and
// available actions are rendered here but are not hash inputs.
type HUD struct {
	Namespace string  `json:"namespace"`
	SuperTick int64   `json:"supertick_id"`
	AgentID   string  `json:"agent_id"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Facing    Facing  `json:"facing"`
	Scopes    []Intent `json:"scopes"`

	Goal string `json:"goal"`

	LastTickResult *LastTickResult `json:"last_tick_result,omitempty"`

	LastAdjudication *AdjudicationView `json:"last_adjudication,omitempty"`

	VisibleTiles []TileView `json:"visible_tiles"`

	VisibleActors []ActorView `json:"visible_actors"`

	RecentChat []ChatView `json:"recent_chat"`

	RecalledMemories []Memory `json:"recalled_memories"`

	AvailableActions []Intent `json:"available_actions"`
}

// ContextPayload is the full response body for GET .../context.
type ContextPayload struct {
	Namespace   string `json:"namespace"`
	SuperTickID int64  `json:"supertick_id"`
	ContextHash string `json:"context_hash"`
	Phase       Phase  `json:"phase"`
	HUD         HUD    `json:"hud"`
}

// BuildContext assembles the HUD for actorID against the engine's current
// snapshot (spec §4.7). chatLength bounds the recent-chat section (the HTTP
// layer's chat_length query param). Unknown and eliminated actors are both
// rejected with CodeUnknownActor.
func (e *Engine) BuildContext(ctx context.Context, actorID string, chatLength int, recaller MemoryRecaller) (*ContextPayload, error) {
	w, hash := e.Snapshot()

	actor, ok := w.Actors[actorID]
	if !ok {
		return nil, newErr(CodeUnknownActor, "unknown actor %q", actorID)
	}
	if actor.Eliminated {
		return nil, newErr(CodeUnknownActor, "actor %q is eliminated", actorID)
	}

	hud := HUD{
		Namespace: w.Namespace,
		SuperTick: w.SuperTickID,
		AgentID:   actor.ID,
		X:         actor.X,
		Y:         actor.Y,
		Facing:    actor.Facing,
		Goal:      w.Goal,
	}
	for intent := range actor.Scopes {
		hud.Scopes = append(hud.Scopes, intent)
	}
	sort.Slice(hud.Scopes, func(i, j int) bool { return hud.Scopes[i] < hud.Scopes[j] })
	hud.AvailableActions = hud.Scopes

	if w.SuperTickID > 0 {
		result, err := lastTickResult(ctx, e.store, w.SuperTickID-1, actorID)
		if err != nil {
			return nil, err
		}
		hud.LastTickResult = result
	}

	if w.LastAdjudication != nil {
		hud.LastAdjudication = &AdjudicationView{
			SuperTickID:   w.LastAdjudication.SuperTickID,
			SelectedTiles: w.LastAdjudication.SelectedTiles,
			Rationale:     w.LastAdjudication.Rationale,
			Feedback:      w.LastAdjudication.Feedback,
		}
	}

	hud.VisibleTiles = visibleTiles(w, actor)
	hud.VisibleActors = visibleActors(w, actor)

	if chatLength <= 0 {
		chatLength = 20
	}
	chatRows, err := store.LoadRecentChat(ctx, e.store.DB(), 0, chatLength)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	for _, c := range chatRows {
		hud.RecentChat = append(hud.RecentChat, ChatView{SuperTickID: c.SuperTickID, FromID: c.FromID, Message: c.Message})
	}

	if recaller != nil {
		memories, err := recaller.Recall(ctx, actorID, w.Goal, 5)
		if err != nil {
			return nil, newErr(CodeInternal, "memory recall failed: %v", err)
		}
		hud.RecalledMemories = memories
	}

	return &ContextPayload{
		Namespace:   w.Namespace,
		SuperTickID: w.SuperTickID,
		ContextHash: hash,
		Phase:       w.Phase,
		HUD:         hud,
	}, nil
}

func lastTickResult(ctx context.Context, s *store.Store, tick int64, actorID string) (*LastTickResult, error) {
	rows, err := store.LoadAuditForTick(ctx, s.DB(), tick)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	for _, r := range rows {
		if r.ActorID != actorID {
			continue
		}
		var decoded struct {
			Outcome Outcome `json:"outcome"`
			Reason  string  `json:"reason,omitempty"`
		}
		if err := json.Unmarshal([]byte(r.ResultJSON), &decoded); err != nil {
			return nil, newErr(CodeInternal, "malformed audit result for actor %q tick %d: %v", actorID, tick, err)
		}
		return &LastTickResult{SuperTickID: tick, Intent: Intent(r.ActionType), Outcome: decoded.Outcome, Reason: decoded.Reason}, nil
	}
	return nil, nil
}

// visibleTiles returns painted tiles within the namespace's visibility
// policy (spec §4.7 section 5): VisibilityRadius == 0 means the whole
// grid, otherwise a square window centered on the actor.
func visibleTiles(w *World, actor *Actor) []TileView {
	var out []TileView
	for k, color := range w.Tiles {
		if !inRadius(w, actor, k.X, k.Y) {
			continue
		}
		out = append(out, TileView{X: k.X, Y: k.Y, Color: color})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func visibleActors(w *World, actor *Actor) []ActorView {
	var out []ActorView
	for _, id := range w.SortedActorIDs() {
		a := w.Actors[id]
		if a.Eliminated {
			continue
		}
		if !inRadius(w, actor, a.X, a.Y) {
			continue
		}
		out = append(out, ActorView{ID: a.ID, X: a.X, Y: a.Y, Facing: a.Facing})
	}
	return out
}

func inRadius(w *World, actor *Actor, x, y int) bool {
	if w.VisibilityRadius <= 0 {
		return true
	}
	dx, dy := x-actor.X, y-actor.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx <= w.VisibilityRadius && dy <= w.VisibilityRadius
}
