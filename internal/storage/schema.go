package storage

import (
	"context"
	"fmt"
)

// migration is one named, monotonic schema step (spec §6: "Migrations must
// be named and monotonic").
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "0001_initial",
		sql: `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	reasoning_effort TEXT,
	environment_name TEXT NOT NULL,
	environment_type TEXT NOT NULL,
	environment_path TEXT NOT NULL,
	cwd TEXT NOT NULL,
	runner TEXT,
	type TEXT NOT NULL DEFAULT 'coding',
	parent_session_id TEXT REFERENCES sessions(id),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	head_entry_id INTEGER,
	tail_entry_id INTEGER
);

CREATE TABLE IF NOT EXISTS session_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	parent_entry_id INTEGER REFERENCES session_entries(id) ON DELETE RESTRICT,
	type TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_at INTEGER NOT NULL
);

-- No forks: at most one child per parent.
CREATE UNIQUE INDEX IF NOT EXISTS idx_session_entries_parent_unique
	ON session_entries(parent_entry_id) WHERE parent_entry_id IS NOT NULL;

-- Exactly one header (parent_entry_id IS NULL) per session.
CREATE UNIQUE INDEX IF NOT EXISTS idx_session_entries_header_unique
	ON session_entries(session_id) WHERE parent_entry_id IS NULL;

CREATE INDEX IF NOT EXISTS idx_session_entries_created_at ON session_entries(created_at);
CREATE INDEX IF NOT EXISTS idx_session_entries_session_id ON session_entries(session_id);
`,
	},
	{
		// Optional environment template columns, added after the base
		// schema (spec §6: "a v2 migration adds optional environment
		// template columns").
		name: "0002_environment_template_columns",
		sql: `
ALTER TABLE sessions ADD COLUMN environment_template_path TEXT;
ALTER TABLE sessions ADD COLUMN environment_startup_script TEXT;
`,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return err
	}
	for _, m := range migrations {
		applied, err := s.migrationApplied(ctx, m.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (s *Store) migrationApplied(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(name, applied_at) VALUES (?, strftime('%s','now'))`, m.name); err != nil {
		return err
	}
	return tx.Commit()
}
