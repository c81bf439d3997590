package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DBVersion is the schema version this build understands, tracked via
// PRAGMA user_version. A stored version greater than this is fatal: the
// binary is older than the database it is pointed at.
const DBVersion = 11

// startupPragmas run once against the write pool at the end of migrate.
const startupPragmas = `
PRAGMA synchronous=NORMAL;
PRAGMA foreign_keys=ON;
PRAGMA journal_size_limit=32768;
PRAGMA mmap_size=17179869184;
`

// initSQL lands a fresh database directly on the v11 shape. The source
// this was grounded on (original_source/src/repo/sqlite_migration.rs)
// reaches v11 through ten sequential ALTER/CREATE steps carrying
// historical baggage (a dropped event_ref/pubkey_ref pair, superseded
// indexes); since only the effective v11 schema is specified, this
// rewrite creates it directly rather than replaying history nobody
// depends on.
const initSQL = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=NORMAL;
PRAGMA foreign_keys=ON;
PRAGMA application_id=1654008667;

CREATE TABLE IF NOT EXISTS event (
	id INTEGER PRIMARY KEY,
	event_hash BLOB NOT NULL,
	first_seen INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	author BLOB NOT NULL,
	delegated_by BLOB,
	kind INTEGER NOT NULL,
	hidden INTEGER,
	content TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS event_hash_index ON event(event_hash);
CREATE INDEX IF NOT EXISTS author_index ON event(author);
CREATE INDEX IF NOT EXISTS created_at_index ON event(created_at);
CREATE INDEX IF NOT EXISTS delegated_by_index ON event(delegated_by);
CREATE INDEX IF NOT EXISTS event_composite_index ON event(kind,created_at);

CREATE TABLE IF NOT EXISTS tag (
	id INTEGER PRIMARY KEY,
	event_id INTEGER NOT NULL,
	name TEXT,
	value TEXT,
	value_hex BLOB,
	FOREIGN KEY(event_id) REFERENCES event(id) ON UPDATE CASCADE ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS tag_val_index ON tag(value);
CREATE INDEX IF NOT EXISTS tag_val_hex_index ON tag(value_hex);
CREATE INDEX IF NOT EXISTS tag_composite_index ON tag(event_id,name,value_hex,value);
CREATE INDEX IF NOT EXISTS tag_name_eid_index ON tag(name,event_id,value_hex);

CREATE TABLE IF NOT EXISTS user_verification (
	id INTEGER PRIMARY KEY,
	metadata_event INTEGER NOT NULL,
	name TEXT NOT NULL,
	verified_at INTEGER,
	failed_at INTEGER,
	failure_count INTEGER DEFAULT 0,
	FOREIGN KEY(metadata_event) REFERENCES event(id) ON UPDATE CASCADE ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS user_verification_name_index ON user_verification(name);
CREATE INDEX IF NOT EXISTS user_verification_event_index ON user_verification(metadata_event);
`

// migrate brings conn to DBVersion, initializing from scratch if the
// database is new, and refusing to run against a newer schema than this
// build understands.
func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	switch {
	case current == 0:
		if _, err := db.ExecContext(ctx, initSQL); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", DBVersion)); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	case current == DBVersion:
		// already current
	case current > DBVersion:
		return fmt.Errorf("database schema v%d is newer than this build supports (v%d)", current, DBVersion)
	default:
		return fmt.Errorf("database schema v%d is older than v%d and this build has no migration path for it", current, DBVersion)
	}
	if _, err := db.ExecContext(ctx, startupPragmas); err != nil {
		return fmt.Errorf("applying startup pragmas: %w", err)
	}
	return nil
}
