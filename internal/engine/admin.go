package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/monument-sim/monument/internal/store"
)

// defaultScopes mirrors the original register_actor's "default: all
// actions" behavior (SPEC_FULL §11.1).
var defaultScopes = []Intent{IntentMove, IntentPaint, IntentSpeak, IntentWait, IntentSkip}

// RegisterActorRequest is the admin payload for adding or replacing an
// actor (spec/SPEC_FULL §11.1: register_actor is INSERT OR REPLACE, so
// re-registering an existing id resets it rather than erroring).
type RegisterActorRequest struct {
	ActorID            string
	X, Y               int
	Facing             Facing
	Scopes             []Intent
	Secret             string // empty means auto-generate
	CustomInstructions string
}

// RegisterActorResult reports the actor's effective secret, since a caller
// that omitted one needs it back to authenticate future submissions.
type RegisterActorResult struct {
	Secret string
}

// RegisterActor adds (or replaces) a namespace actor. Must run through
// RunAdmin so it never races the tick loop's own actor-map mutations.
func (e *Engine) RegisterActor(ctx context.Context, req RegisterActorRequest) (RegisterActorResult, error) {
	var result RegisterActorResult
	err := e.RunAdmin(ctx, func(ctx context.Context) error {
		facing := req.Facing
		if facing == "" {
			facing = FacingN
		}
		scopes := req.Scopes
		if len(scopes) == 0 {
			scopes = defaultScopes
		}
		secret := req.Secret
		if secret == "" {
			var err error
			secret, err = generateSecret()
			if err != nil {
				return newErr(CodeInternal, "generate actor secret: %v", err)
			}
		}
		result.Secret = secret

		scopeList := make([]string, len(scopes))
		for i, s := range scopes {
			scopeList[i] = string(s)
		}
		scopesJSON, err := json.Marshal(scopeList)
		if err != nil {
			return newErr(CodeInternal, "marshal scopes: %v", err)
		}

		e.mu.Lock()

		row := store.ActorRow{
			ID:                 req.ActorID,
			Secret:             secret,
			X:                  req.X,
			Y:                  req.Y,
			Facing:             string(facing),
			ScopesJSON:         string(scopesJSON),
			CustomInstructions: req.CustomInstructions,
		}
		tick := e.world.SuperTickID
		now := time.Now().Unix()
		if err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			if err := store.UpsertActor(ctx, tx, row); err != nil {
				return err
			}
			return store.InsertActorHistory(ctx, tx, req.ActorID, tick, req.X, req.Y, string(facing), now)
		}); err != nil {
			e.mu.Unlock()
			return classifyStoreErr(err)
		}

		scopeSet := map[Intent]bool{}
		for _, s := range scopes {
			scopeSet[s] = true
		}
		e.world.Actors[req.ActorID] = &Actor{
			ID:                 req.ActorID,
			secret:             secret,
			X:                  req.X,
			Y:                  req.Y,
			Facing:             facing,
			Scopes:             scopeSet,
			CustomInstructions: req.CustomInstructions,
		}
		e.mu.Unlock()
		// A registered actor joins ContextHash's sorted-actors payload
		// (hash.go), so the hash must move with it, the same way runMerge
		// refreshes it after committing a tick.
		e.refreshHash()
		return nil
	})
	return result, err
}

// UnregisterActor deletes an actor row outright, matching the original's
// unregister_actor (a hard delete, not a soft eliminate).
func (e *Engine) UnregisterActor(ctx context.Context, actorID string) error {
	return e.RunAdmin(ctx, func(ctx context.Context) error {
		e.mu.Lock()
		if _, ok := e.world.Actors[actorID]; !ok {
			e.mu.Unlock()
			return newErr(CodeUnknownActor, "actor %q is not registered", actorID)
		}
		if err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			return store.DeleteActor(ctx, tx, actorID)
		}); err != nil {
			e.mu.Unlock()
			return classifyStoreErr(err)
		}
		delete(e.world.Actors, actorID)
		e.mu.Unlock()
		// The removed actor drops out of ContextHash's sorted-actors
		// payload (hash.go), so the hash must move with it.
		e.refreshHash()
		return nil
	})
}

// UpdateActorScopesRequest patches an actor's allowed intents in place.
type UpdateActorScopesRequest struct {
	ActorID string
	Scopes  []Intent
}

// UpdateActorScopes mirrors the original's update_actor_scopes.
func (e *Engine) UpdateActorScopes(ctx context.Context, req UpdateActorScopesRequest) error {
	return e.RunAdmin(ctx, func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		actor, ok := e.world.Actors[req.ActorID]
		if !ok {
			return newErr(CodeUnknownActor, "actor %q is not registered", req.ActorID)
		}

		scopeList := make([]string, len(req.Scopes))
		for i, s := range req.Scopes {
			scopeList[i] = string(s)
		}
		scopesJSON, err := json.Marshal(scopeList)
		if err != nil {
			return newErr(CodeInternal, "marshal scopes: %v", err)
		}
		if err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE actors SET scopes_json = ? WHERE id = ?", string(scopesJSON), req.ActorID)
			return err
		}); err != nil {
			return classifyStoreErr(err)
		}

		scopeSet := map[Intent]bool{}
		for _, s := range req.Scopes {
			scopeSet[s] = true
		}
		actor.Scopes = scopeSet
		return nil
	})
}

// UpdateActorInstructions mirrors the original's update_actor_instructions.
func (e *Engine) UpdateActorInstructions(ctx context.Context, actorID, instructions string) error {
	return e.RunAdmin(ctx, func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		actor, ok := e.world.Actors[actorID]
		if !ok {
			return newErr(CodeUnknownActor, "actor %q is not registered", actorID)
		}
		if err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE actors SET custom_instructions = ? WHERE id = ?", instructions, actorID)
			return err
		}); err != nil {
			return classifyStoreErr(err)
		}
		actor.CustomInstructions = instructions
		return nil
	})
}

// EliminateActor marks an actor eliminated without deleting its row, so
// its history/audit trail survives (unlike UnregisterActor's hard
// delete). An explicit admin call, never inferred (SPEC_FULL §12).
func (e *Engine) EliminateActor(ctx context.Context, actorID string) error {
	return e.RunAdmin(ctx, func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		actor, ok := e.world.Actors[actorID]
		if !ok {
			return newErr(CodeUnknownActor, "actor %q is not registered", actorID)
		}
		if actor.Eliminated {
			return nil
		}
		now := time.Now().Unix()
		if err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			return store.EliminateActor(ctx, tx, actorID, now)
		}); err != nil {
			return classifyStoreErr(err)
		}
		actor.Eliminated = true
		actor.EliminatedAt = now
		return nil
	})
}

// RegenerateActorSecret rolls a fresh secret and returns it; the caller is
// responsible for delivering it to the agent out of band.
func (e *Engine) RegenerateActorSecret(ctx context.Context, actorID string) (string, error) {
	var secret string
	err := e.RunAdmin(ctx, func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		actor, ok := e.world.Actors[actorID]
		if !ok {
			return newErr(CodeUnknownActor, "actor %q is not registered", actorID)
		}
		newSecret, err := generateSecret()
		if err != nil {
			return newErr(CodeInternal, "generate actor secret: %v", err)
		}
		if err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE actors SET secret = ? WHERE id = ?", newSecret, actorID)
			return err
		}); err != nil {
			return classifyStoreErr(err)
		}
		actor.secret = newSecret
		secret = newSecret
		return nil
	})
	return secret, err
}

// generateSecret mirrors the original's secrets.token_hex(16): 16 random
// bytes, hex-encoded to a 32-character string.
func generateSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
