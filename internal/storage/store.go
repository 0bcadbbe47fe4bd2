// Package storage is the Entry Store (spec §4.1, §6): durable backing for
// sessions and their append-only entry chains.
//
// The teacher (go-opencode) backs its sessions with flat per-object JSON
// files (internal/storage/storage.go); that cannot satisfy spec's bit-exact
// SQLite schema and unique-index chain invariants, so this component is
// instead grounded on nstogner-operative/operative's
// pkg/store/sqlite/sqlite.go: a mattn/go-sqlite3 blank import, WAL mode with
// a busy timeout, a raw-SQL migration runner, and direct
// QueryRowContext/ExecContext CRUD rather than an ORM.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wuhu-labs/wuhu/internal/logging"
)

// Store is the single owner of the entries database (spec §9: "the process
// owns a single Entry Store handle"). Reads do not take writeMu, but every
// query shares the one open connection (see Open); writes are
// serialized on writeMu in addition to SQLite's own busy-timeout handling,
// matching spec §4.1's "writes are serialized per-process on a write
// handle."
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if absent) the SQLite database at path, enables
// foreign keys and WAL mode, sets a 5s busy timeout (spec §6: "5-second busy
// timeout"), and runs pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// The chain invariants rely on single-writer semantics; sqlite3's
	// driver does not itself serialize writers across connections, so we
	// restrict to one open connection and serialize in Go (writeMu).
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func logErr(op string, err error) {
	if err != nil {
		logging.Error().Err(err).Str("op", op).Msg("storage operation failed")
	}
}
