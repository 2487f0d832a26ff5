// Package store manages the per-namespace embedded relational file: open,
// schema/pragma application, version verification, and the single atomic
// unit-of-work primitive the tick commit path relies on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Kind distinguishes the store-layer failure modes named in the error
// taxonomy (spec §7) from an engine-level *engine.Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindSchemaMismatch
	KindIO
	KindBusy
)

// Error wraps a store-layer failure with the Kind the engine needs to map
// onto the taxonomy without parsing error strings.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Store wraps one namespace's SQLite file. All mutating access from the
// engine goes through WithTx; reads may use Query*/Get* directly since the
// driver serializes writers but allows concurrent readers under WAL.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the namespace store at path, applies the
// fixed pragma script, applies the schema script and stamps the version
// when the file is new, and verifies PRAGMA user_version. A
// store that exists with the wrong version is refused with KindSchemaMismatch
// — there is no migration path (spec Non-goals).
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &Error{Kind: KindIO, Op: "mkdir", Err: err}
	}

	existed := fileExists(path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &Error{Kind: KindIO, Op: "open", Err: err}
	}
	// One connection: the engine already serializes writers per namespace
	// (spec §5), and SQLite's own writer lock makes a pool pointless here —
	// same choice the teacher's index store makes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(pragmaSQL); err != nil {
		_ = db.Close()
		return nil, &Error{Kind: KindIO, Op: "pragmas", Err: err}
	}

	if !existed {
		if err := initFresh(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := verifyVersion(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func initFresh(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return &Error{Kind: KindIO, Op: "schema", Err: err}
	}
	if _, err := db.Exec(fmt.Sprintf(schemaVersionPragmaFmt, ExpectedSchemaVersion)); err != nil {
		return &Error{Kind: KindIO, Op: "stamp-version", Err: err}
	}
	return nil
}

func verifyVersion(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return &Error{Kind: KindIO, Op: "read-version", Err: err}
	}
	if version != ExpectedSchemaVersion {
		return &Error{
			Kind: KindSchemaMismatch,
			Op:   "verify-version",
			Err:  fmt.Errorf("schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, version),
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying *sql.DB for read queries. Mutations outside a
// WithTx call are not part of the supported contract.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn inside a single transaction: either every statement fn
// issues commits, or none do. This is the only mutation path the tick
// commit pipeline (intake, merge) is allowed to use — it must never return
// control with an open transaction, so fn's error (or a panic, recovered
// and re-raised) always triggers a rollback before WithTx returns.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, beginErr := s.db.BeginTx(ctx, nil)
	if beginErr != nil {
		return classifyBusy("begin", beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		return classifyBusy("commit", err)
	}
	return nil
}

func classifyBusy(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindBusy, Op: op, Err: err}
	}
	// modernc.org/sqlite reports SQLITE_BUSY via its own error type; the
	// busy_timeout pragma already converts transient contention into a
	// bounded wait, so anything that still reaches here after that
	// deadline is treated as StoreBusy rather than a generic IoError.
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "busy") {
		return &Error{Kind: KindBusy, Op: op, Err: err}
	}
	return &Error{Kind: KindIO, Op: op, Err: err}
}
