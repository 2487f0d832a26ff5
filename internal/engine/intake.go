package engine

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/monument-sim/monument/internal/store"
)

// SubmitRequest is the decoded body of POST /sim/{ns}/agent/{id}/action
// (spec §6), plus the secret carried in the X-Agent-Secret header.
type SubmitRequest struct {
	Namespace   string
	SuperTickID int64
	ContextHash string
	ActorID     string
	Secret      string
	ActionText  string
	LLMInput    string
	LLMOutput   string
}

// SubmitResult is returned to the HTTP layer on a successful intake.
type SubmitResult struct {
	Status  string
	Message string
}

// Submit runs the 9-step validation chain from spec §4.4 against the
// frozen snapshot w, then commits a pending journal row. w must be the
// snapshot taken when COLLECT for req.SuperTickID began; intake never
// re-reads live state mid-check, only at commit time inside the same
// transaction that the caller already serializes through the namespace's
// single tick-owning goroutine.
func Submit(ctx context.Context, s *store.Store, w *World, contextHash string, req SubmitRequest, now time.Time) (SubmitResult, error) {
	// 1. Namespace format valid — the caller (HTTP router) already ran
	// namespace.Validate before resolving a handle; a malformed namespace
	// never reaches here; belt-and-suspenders with the same check would
	// just duplicate that validation.

	// 2. Namespace exists and its phase is COLLECT.
	if w.Phase != PhaseCollect {
		return SubmitResult{}, newErr(CodePhaseMismatch, "namespace %q is not in COLLECT (phase=%s)", req.Namespace, w.Phase)
	}

	// 3. Actor exists and is non-eliminated.
	actor, ok := w.Actors[req.ActorID]
	if !ok {
		return SubmitResult{}, newErr(CodeUnknownActor, "unknown actor %q", req.ActorID)
	}
	if actor.Eliminated {
		return SubmitResult{}, newErr(CodeUnknownActor, "actor %q is eliminated", req.ActorID)
	}

	// 4. Secret matches actor's credential. Constant-time to avoid a
	// timing side-channel on the comparison.
	if !secretEquals(req.Secret, actor.secret) {
		return SubmitResult{}, newErr(CodeAuthFailed, "secret mismatch for actor %q", req.ActorID)
	}

	// 5. supertick_id equals current tick.
	if req.SuperTickID != w.SuperTickID {
		return SubmitResult{}, newErr(CodeSupertickMismatch, "Supertick mismatch: got %d, current is %d", req.SuperTickID, w.SuperTickID)
	}

	// 6. context_hash equals current context hash.
	if req.ContextHash != contextHash {
		return SubmitResult{}, newErr(CodeContextHashMismatch, "Context hash mismatch: got %s, current is %s", req.ContextHash, contextHash)
	}

	// 7. No journal row exists for (supertick_id, actor_id).
	exists, err := store.JournalExists(ctx, s.DB(), req.SuperTickID, req.ActorID)
	if err != nil {
		return SubmitResult{}, classifyStoreErr(err)
	}
	if exists {
		return SubmitResult{}, newErr(CodeAlreadySubmitted, "already submitted for tick %d", req.SuperTickID)
	}

	// 8. & 9. Parse, then check scope and intent-specific params.
	action, err := ParseAction(req.ActionText)
	if err != nil {
		return SubmitResult{}, err
	}
	if !actor.HasScope(action.Intent) {
		return SubmitResult{}, newErr(CodeScopeDenied, "actor %q lacks scope %s", req.ActorID, action.Intent)
	}
	if err := validateIntentParams(w, actor, action); err != nil {
		return SubmitResult{}, err
	}

	paramsJSON, err := json.Marshal(action.Params)
	if err != nil {
		return SubmitResult{}, newErr(CodeInternal, "marshal action params: %v", err)
	}

	row := store.JournalRow{
		SuperTickID: req.SuperTickID,
		ActorID:     req.ActorID,
		Intent:      string(action.Intent),
		ParamsJSON:  string(paramsJSON),
		Status:      "pending",
		SubmittedAt: now.Unix(),
	}
	if req.LLMInput != "" {
		row.LLMInput = sql.NullString{String: req.LLMInput, Valid: true}
	}
	if req.LLMOutput != "" {
		row.LLMOutput = sql.NullString{String: req.LLMOutput, Valid: true}
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		// Re-check uniqueness inside the transaction: the journal's
		// primary key is the authoritative guard (spec §8 Uniqueness);
		// the check above is only a cheap pre-filter to avoid building
		// params_json on a request that will fail anyway.
		return store.InsertJournal(ctx, tx, row)
	})
	if err != nil {
		return SubmitResult{}, classifyStoreErr(err)
	}

	return SubmitResult{Status: "accepted", Message: "submission recorded"}, nil
}

func secretEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// validateIntentParams implements spec §4.5's "Valid iff" column, given
// the frozen snapshot w.
func validateIntentParams(w *World, actor *Actor, a Action) error {
	switch a.Intent {
	case IntentMove:
		dx, dy := deltaFor(a.Params.Direction)
		tx, ty := actor.X+dx, actor.Y+dy
		if !w.InBounds(tx, ty) {
			return newErr(CodeMalformedAction, "MOVE target (%d,%d) is out of bounds", tx, ty)
		}
		// Occupancy is a merge-time conflict (spec §4.6), not an intake
		// rejection: resolve() in merge.go owns it and resolves a MOVE
		// into a cell occupied in the snapshot to CONFLICT_LOST, even if
		// the occupant moves away in the same tick.
		return nil

	case IntentPaint:
		tx, ty := actor.X, actor.Y
		if a.Params.HasTarget {
			tx, ty = a.Params.TargetX, a.Params.TargetY
		}
		if !w.InBounds(tx, ty) {
			return newErr(CodeMalformedAction, "PAINT target (%d,%d) is out of bounds", tx, ty)
		}
		return nil

	case IntentSpeak, IntentWait, IntentSkip:
		return nil

	default:
		return newErr(CodeMalformedAction, "unknown intent %q", a.Intent)
	}
}

func deltaFor(f Facing) (int, int) {
	switch f {
	case FacingN:
		return 0, -1
	case FacingS:
		return 0, 1
	case FacingE:
		return 1, 0
	case FacingW:
		return -1, 0
	default:
		return 0, 0
	}
}

func classifyStoreErr(err error) error {
	if se, ok := err.(*store.Error); ok {
		switch se.Kind {
		case store.KindBusy:
			return newErr(CodeStoreBusy, "%s", se.Error())
		case store.KindSchemaMismatch:
			return newErr(CodeSchemaMismatch, "%s", se.Error())
		default:
			return newErr(CodeIO, "%s", se.Error())
		}
	}
	return newErr(CodeInternal, "%v", err)
}
