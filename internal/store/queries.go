package store

import (
	"context"
	"database/sql"
)

// MetaRow is one key/value pair from the meta table.
type MetaRow struct {
	Key   string
	Value string
}

// ActorRow mirrors the actors table.
type ActorRow struct {
	ID                 string
	Secret             string
	X, Y               int
	Facing             string
	ScopesJSON         string
	CustomInstructions string
	Points             int
	EliminatedAt       sql.NullInt64
}

// TileRow mirrors the tiles table.
type TileRow struct {
	X, Y  int
	Color string
}

// JournalRow mirrors the journal table.
type JournalRow struct {
	SuperTickID int64
	ActorID     string
	Intent      string
	ParamsJSON  string
	Status      string
	ResultJSON  sql.NullString
	LLMInput    sql.NullString
	LLMOutput   sql.NullString
	SubmittedAt int64
}

// LoadMeta returns every meta row as a map for convenience callers.
func LoadMeta(ctx context.Context, q Queryer) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Queryer is satisfied by both *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SetMeta upserts a single meta key.
func SetMeta(ctx context.Context, x Execer, key, value string) error {
	_, err := x.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// LoadActors returns every actor row, ordered by id for deterministic
// iteration (spec §9: "iteration order over actors during context hashing
// must be deterministic").
func LoadActors(ctx context.Context, q Queryer) ([]ActorRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, secret, x, y, facing, scopes_json,
		custom_instructions, points, eliminated_at FROM actors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActorRow
	for rows.Next() {
		var a ActorRow
		if err := rows.Scan(&a.ID, &a.Secret, &a.X, &a.Y, &a.Facing, &a.ScopesJSON,
			&a.CustomInstructions, &a.Points, &a.EliminatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LoadTiles returns every painted tile, ordered by (y, x) to match the
// original HUD's rendering order.
func LoadTiles(ctx context.Context, q Queryer) ([]TileRow, error) {
	rows, err := q.QueryContext(ctx, "SELECT x, y, color FROM tiles ORDER BY y, x")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TileRow
	for rows.Next() {
		var t TileRow
		if err := rows.Scan(&t.X, &t.Y, &t.Color); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTile returns a single tile's color, or ok=false if the cell has never
// been painted (callers default to BackgroundColor in that case).
func GetTile(ctx context.Context, q Queryer, x, y int) (string, bool, error) {
	var color string
	err := q.QueryRowContext(ctx, "SELECT color FROM tiles WHERE x = ? AND y = ?", x, y).Scan(&color)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return color, true, nil
}

// UpsertTile sets a tile's color (used only by the merge pipeline).
func UpsertTile(ctx context.Context, x Execer, tx, ty int, color string) error {
	_, err := x.ExecContext(ctx, `INSERT INTO tiles(x, y, color) VALUES (?, ?, ?)
		ON CONFLICT(x, y) DO UPDATE SET color = excluded.color`, tx, ty, color)
	return err
}

// InsertTileHistory appends one tile_history row.
func InsertTileHistory(ctx context.Context, x Execer, tileX, tileY int, tick int64, actorID, oldColor, newColor, actionType string, createdAt int64) error {
	_, err := x.ExecContext(ctx, `INSERT INTO tile_history
		(x, y, supertick_id, actor_id, old_color, new_color, action_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tileX, tileY, tick, actorID, oldColor, newColor, actionType, createdAt)
	return err
}

// InsertJournal inserts a pending journal row. The (supertick_id, actor_id)
// primary key rejects a duplicate submission at the SQL layer as a second
// line of defense behind the engine's own uniqueness check (spec §8).
func InsertJournal(ctx context.Context, x Execer, j JournalRow) error {
	_, err := x.ExecContext(ctx, `INSERT INTO journal
		(supertick_id, actor_id, intent, params_json, status, result_json, llm_input, llm_output, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.SuperTickID, j.ActorID, j.Intent, j.ParamsJSON, j.Status, j.ResultJSON, j.LLMInput, j.LLMOutput, j.SubmittedAt)
	return err
}

// LoadJournalForTick returns all journal rows for a tick, ordered by
// actor_id so callers get deterministic iteration without re-sorting.
func LoadJournalForTick(ctx context.Context, q Queryer, tick int64) ([]JournalRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT supertick_id, actor_id, intent, params_json, status,
		result_json, llm_input, llm_output, submitted_at FROM journal
		WHERE supertick_id = ? ORDER BY actor_id`, tick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalRow
	for rows.Next() {
		var j JournalRow
		if err := rows.Scan(&j.SuperTickID, &j.ActorID, &j.Intent, &j.ParamsJSON, &j.Status,
			&j.ResultJSON, &j.LLMInput, &j.LLMOutput, &j.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// JournalExists reports whether a (tick, actor) row already exists —
// exactly the uniqueness guard spec §8 requires.
func JournalExists(ctx context.Context, q Queryer, tick int64, actorID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM journal WHERE supertick_id = ? AND actor_id = ?", tick, actorID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FinalizeJournal sets the terminal status/result for a (tick, actor) row.
func FinalizeJournal(ctx context.Context, x Execer, tick int64, actorID, status, resultJSON string) error {
	_, err := x.ExecContext(ctx, "UPDATE journal SET status = ?, result_json = ? WHERE supertick_id = ? AND actor_id = ?",
		status, resultJSON, tick, actorID)
	return err
}

// InsertAudit appends one audit row.
func InsertAudit(ctx context.Context, x Execer, tick int64, actorID, actionType, paramsJSON, resultJSON, contextHash string, submittedAt int64) error {
	_, err := x.ExecContext(ctx, `INSERT INTO audit
		(supertick_id, actor_id, action_type, params_json, result_json, context_hash, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tick, actorID, actionType, paramsJSON, resultJSON, contextHash, submittedAt)
	return err
}

// LoadAuditForTick returns audit rows for a tick ordered by id (insertion
// order), matching the original's "PREVIOUS SUPERTICK RESULTS" ordering.
func LoadAuditForTick(ctx context.Context, q Queryer, tick int64) ([]AuditRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT actor_id, action_type, params_json, result_json, context_hash, submitted_at
		FROM audit WHERE supertick_id = ? ORDER BY id`, tick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		if err := rows.Scan(&a.ActorID, &a.ActionType, &a.ParamsJSON, &a.ResultJSON, &a.ContextHash, &a.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AuditRow mirrors a read of the audit table.
type AuditRow struct {
	ActorID     string
	ActionType  string
	ParamsJSON  string
	ResultJSON  string
	ContextHash string
	SubmittedAt int64
}

// InsertChat appends one chat row.
func InsertChat(ctx context.Context, x Execer, tick int64, fromID, message string, createdAt int64) error {
	_, err := x.ExecContext(ctx, "INSERT INTO chat (supertick_id, from_id, message, created_at) VALUES (?, ?, ?, ?)",
		tick, fromID, message, createdAt)
	return err
}

// ChatRow mirrors a read of the chat table.
type ChatRow struct {
	SuperTickID int64
	FromID      string
	Message     string
	CreatedAt   int64
}

// LoadRecentChat returns up to limit most recent chat rows at or after
// sinceTick, oldest first (matches the HUD's chronological rendering).
func LoadRecentChat(ctx context.Context, q Queryer, sinceTick int64, limit int) ([]ChatRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT supertick_id, from_id, message, created_at FROM chat
		WHERE supertick_id >= ? ORDER BY supertick_id DESC, id DESC LIMIT ?`, sinceTick, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChatRow
	for rows.Next() {
		var c ChatRow
		if err := rows.Scan(&c.SuperTickID, &c.FromID, &c.Message, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	// Rows were fetched newest-first to bound the scan with LIMIT; restore
	// chronological order for rendering.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// UpsertActor inserts or replaces an actor row wholesale (used by the admin
// surface, not by the merge pipeline).
func UpsertActor(ctx context.Context, x Execer, a ActorRow) error {
	_, err := x.ExecContext(ctx, `INSERT INTO actors
		(id, secret, x, y, facing, scopes_json, custom_instructions, points, eliminated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET secret=excluded.secret, x=excluded.x, y=excluded.y,
			facing=excluded.facing, scopes_json=excluded.scopes_json,
			custom_instructions=excluded.custom_instructions, points=excluded.points,
			eliminated_at=excluded.eliminated_at`,
		a.ID, a.Secret, a.X, a.Y, a.Facing, a.ScopesJSON, a.CustomInstructions, a.Points, a.EliminatedAt)
	return err
}

// UpdateActorPosition updates just position/facing (the merge pipeline's
// hot path for MOVE outcomes).
func UpdateActorPosition(ctx context.Context, x Execer, actorID string, tx, ty int, facing string) error {
	_, err := x.ExecContext(ctx, "UPDATE actors SET x = ?, y = ?, facing = ? WHERE id = ?", tx, ty, facing, actorID)
	return err
}

// UpdateActorPoints sets an actor's point balance.
func UpdateActorPoints(ctx context.Context, x Execer, actorID string, points int) error {
	_, err := x.ExecContext(ctx, "UPDATE actors SET points = ? WHERE id = ?", points, actorID)
	return err
}

// EliminateActor stamps eliminated_at.
func EliminateActor(ctx context.Context, x Execer, actorID string, at int64) error {
	_, err := x.ExecContext(ctx, "UPDATE actors SET eliminated_at = ? WHERE id = ?", at, actorID)
	return err
}

// InsertActorHistory appends a spawn/position snapshot row.
func InsertActorHistory(ctx context.Context, x Execer, actorID string, tick int64, tx, ty int, facing string, createdAt int64) error {
	_, err := x.ExecContext(ctx, `INSERT INTO actor_history (actor_id, supertick_id, x, y, facing, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, actorID, tick, tx, ty, facing, createdAt)
	return err
}

// DeleteActor removes an actor row (admin unregister).
func DeleteActor(ctx context.Context, x Execer, actorID string) error {
	_, err := x.ExecContext(ctx, "DELETE FROM actors WHERE id = ?", actorID)
	return err
}

// GetActor loads a single actor by id, or sql.ErrNoRows.
func GetActor(ctx context.Context, q Queryer, actorID string) (ActorRow, error) {
	var a ActorRow
	err := q.QueryRowContext(ctx, `SELECT id, secret, x, y, facing, scopes_json, custom_instructions,
		points, eliminated_at FROM actors WHERE id = ?`, actorID).Scan(
		&a.ID, &a.Secret, &a.X, &a.Y, &a.Facing, &a.ScopesJSON, &a.CustomInstructions, &a.Points, &a.EliminatedAt)
	return a, err
}

// InsertScoringRound appends one scoring round row.
func InsertScoringRound(ctx context.Context, x Execer, tick int64, selectedTilesJSON, contributionsJSON, rationale, feedback string, createdAt int64) error {
	_, err := x.ExecContext(ctx, `INSERT INTO scoring_rounds
		(supertick_id, selected_tiles_json, contributions_json, rationale, feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, tick, selectedTilesJSON, contributionsJSON, rationale, feedback, createdAt)
	return err
}

// ScoringRoundRow mirrors a read of the scoring_rounds table.
type ScoringRoundRow struct {
	SuperTickID       int64
	SelectedTilesJSON string
	ContributionsJSON string
	Rationale         string
	Feedback          string
	CreatedAt         int64
}

// LoadLastScoringRound returns the most recent scoring round, if any.
func LoadLastScoringRound(ctx context.Context, q Queryer) (ScoringRoundRow, bool, error) {
	var r ScoringRoundRow
	err := q.QueryRowContext(ctx, `SELECT supertick_id, selected_tiles_json, contributions_json,
		rationale, feedback, created_at FROM scoring_rounds ORDER BY supertick_id DESC LIMIT 1`).Scan(
		&r.SuperTickID, &r.SelectedTilesJSON, &r.ContributionsJSON, &r.Rationale, &r.Feedback, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return ScoringRoundRow{}, false, nil
	}
	if err != nil {
		return ScoringRoundRow{}, false, err
	}
	return r, true, nil
}

// ReplayTileHistory reconstructs tiles as of upToTick by folding
// tile_history forward from the background color — the round-trip
// property spec §8 requires ("applying tile_history forward from tick 0
// reproduces tiles").
func ReplayTileHistory(ctx context.Context, q Queryer, upToTick int64) (map[[2]int]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT x, y, new_color FROM tile_history
		WHERE supertick_id <= ? ORDER BY supertick_id ASC, id ASC`, upToTick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[[2]int]string{}
	for rows.Next() {
		var x, y int
		var c string
		if err := rows.Scan(&x, &y, &c); err != nil {
			return nil, err
		}
		out[[2]int{x, y}] = c
	}
	return out, rows.Err()
}

// LoadAuditRange returns audit rows across [fromTick, toTick] for replay
// export, ordered by tick then id.
func LoadAuditRange(ctx context.Context, q Queryer, fromTick, toTick int64) ([]AuditRowWithTick, error) {
	rows, err := q.QueryContext(ctx, `SELECT supertick_id, actor_id, action_type, params_json, result_json,
		context_hash, submitted_at FROM audit WHERE supertick_id BETWEEN ? AND ? ORDER BY supertick_id, id`,
		fromTick, toTick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRowWithTick
	for rows.Next() {
		var a AuditRowWithTick
		if err := rows.Scan(&a.SuperTickID, &a.ActorID, &a.ActionType, &a.ParamsJSON, &a.ResultJSON, &a.ContextHash, &a.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AuditRowWithTick is AuditRow plus its tick, for range exports.
type AuditRowWithTick struct {
	SuperTickID int64
	ActorID     string
	ActionType  string
	ParamsJSON  string
	ResultJSON  string
	ContextHash string
	SubmittedAt int64
}

