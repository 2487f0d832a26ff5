package store

// ExpectedSchemaVersion must match the PRAGMA user_version stamped by
// schemaSQL. A namespace store whose user_version differs is refused —
// there is no migration system (spec Non-goals); drift is a fail-fast
// error, not something this package repairs.
const ExpectedSchemaVersion = 1

// pragmaSQL mirrors the teacher's initPragmas: WAL for append-heavy
// workloads, NORMAL durability, a bounded busy timeout so contention
// surfaces as StoreBusy rather than hanging a handler.
const pragmaSQL = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=NORMAL;
PRAGMA foreign_keys=ON;
PRAGMA busy_timeout=5000;
PRAGMA temp_store=MEMORY;
`

// schemaSQL is the fixed, versioned schema script. Open executes it only
// when it creates a new store file; an existing file is not re-scripted,
// and the user_version check is what guards it against drift.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS actors (
	id                  TEXT PRIMARY KEY,
	secret              TEXT NOT NULL,
	x                   INTEGER NOT NULL,
	y                   INTEGER NOT NULL,
	facing              TEXT NOT NULL DEFAULT 'N',
	scopes_json         TEXT NOT NULL,
	custom_instructions TEXT NOT NULL DEFAULT '',
	points              INTEGER NOT NULL DEFAULT 0,
	eliminated_at       INTEGER
);

CREATE TABLE IF NOT EXISTS actor_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	actor_id    TEXT NOT NULL,
	supertick_id INTEGER NOT NULL,
	x           INTEGER NOT NULL,
	y           INTEGER NOT NULL,
	facing      TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actor_history_actor ON actor_history(actor_id, supertick_id);

CREATE TABLE IF NOT EXISTS tiles (
	x     INTEGER NOT NULL,
	y     INTEGER NOT NULL,
	color TEXT NOT NULL,
	PRIMARY KEY (x, y)
);

CREATE TABLE IF NOT EXISTS tile_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	x            INTEGER NOT NULL,
	y            INTEGER NOT NULL,
	supertick_id INTEGER NOT NULL,
	actor_id     TEXT NOT NULL,
	old_color    TEXT NOT NULL,
	new_color    TEXT NOT NULL,
	action_type  TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tile_history_pos ON tile_history(x, y, supertick_id);
CREATE INDEX IF NOT EXISTS idx_tile_history_tick ON tile_history(supertick_id);

CREATE TABLE IF NOT EXISTS journal (
	supertick_id INTEGER NOT NULL,
	actor_id     TEXT NOT NULL,
	intent       TEXT NOT NULL,
	params_json  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	result_json  TEXT,
	llm_input    TEXT,
	llm_output   TEXT,
	submitted_at INTEGER NOT NULL,
	PRIMARY KEY (supertick_id, actor_id)
);

CREATE TABLE IF NOT EXISTS audit (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	supertick_id INTEGER NOT NULL,
	actor_id     TEXT NOT NULL,
	action_type  TEXT NOT NULL,
	params_json  TEXT NOT NULL,
	result_json  TEXT NOT NULL,
	context_hash TEXT NOT NULL,
	submitted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_tick ON audit(supertick_id);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit(actor_id, supertick_id);

CREATE TABLE IF NOT EXISTS chat (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	supertick_id INTEGER NOT NULL,
	from_id      TEXT NOT NULL,
	message      TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_tick ON chat(supertick_id);

CREATE TABLE IF NOT EXISTS scoring_rounds (
	supertick_id              INTEGER PRIMARY KEY,
	selected_tiles_json       TEXT NOT NULL,
	contributions_json        TEXT NOT NULL,
	rationale                 TEXT NOT NULL DEFAULT '',
	feedback                  TEXT NOT NULL DEFAULT '',
	created_at                INTEGER NOT NULL
);
`

// schemaVersionPragmaFmt stamps PRAGMA user_version. SQLite pragmas cannot take
// bound parameters, so this is built with fmt.Sprintf in store.go rather
// than kept as a plain constant.
const schemaVersionPragmaFmt = "PRAGMA user_version = %d;"
