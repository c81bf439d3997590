// Package store is the relay's durable event store: a SQLite-backed
// schema plus the query compiler that turns a Filter into a
// parameterized SQL statement. It exposes two pools, a small read-write
// pool for the single Writer and a larger read-only pool for historical
// queries, matching the teacher's separation of a write-owning database
// handle from reader state.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"brokerly.dev/utils/chk"
	"brokerly.dev/utils/context"
	"brokerly.dev/utils/log"
)

// FileName is the SQLite database file created under the configured
// data directory.
const FileName = "brokerly.db"

// EventCountOptimizeTrigger is how many persisted writes accumulate
// before the Writer fires PRAGMA optimize on the write pool.
const EventCountOptimizeTrigger = 500

// Store owns the write pool (and, once opened, the read pool) over a
// single SQLite database file.
type Store struct {
	ctx     context.T
	dataDir string
	write   *sql.DB
	read    *sql.DB
}

// Open creates (or attaches to) the database file under dataDir, runs
// migrations, and returns a Store with its write pool ready. The read
// pool is opened separately via OpenReadPool once the file is known to
// exist.
func Open(ctx context.T, dataDir string) (s *Store, err error) {
	if err = os.MkdirAll(dataDir, 0755); chk.E(err) {
		return
	}
	path := filepath.Join(dataDir, FileName)
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=foreign_keys(1)", path)
	var write *sql.DB
	if write, err = sql.Open("sqlite", dsn); chk.E(err) {
		return
	}
	write.SetMaxOpenConns(2)
	write.SetConnMaxLifetime(60 * time.Second)
	if err = migrate(ctx, write); chk.E(err) {
		write.Close()
		return
	}
	log.I.F("opened database %s for writing", path)
	s = &Store{ctx: ctx, dataDir: dataDir, write: write}
	return
}

// OpenReadPool opens the shared-cache read-only pool used by historical
// queries. It waits for the database file to exist, since on first run
// the Writer may not have created it yet.
func (s *Store) OpenReadPool(minIdle, maxOpen int) (err error) {
	path := filepath.Join(s.dataDir, FileName)
	for {
		if _, statErr := os.Stat(path); statErr == nil {
			break
		}
		log.D.Ln("read pool waiting on the database to be created...")
		time.Sleep(500 * time.Millisecond)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&cache=shared&_pragma=foreign_keys(1)", path)
	var read *sql.DB
	if read, err = sql.Open("sqlite", dsn); chk.E(err) {
		return
	}
	read.SetMaxIdleConns(minIdle)
	read.SetMaxOpenConns(maxOpen)
	read.SetConnMaxLifetime(60 * time.Second)
	s.read = read
	log.I.F("opened read pool (min=%d, max=%d)", minIdle, maxOpen)
	return
}

// Optimize runs PRAGMA optimize against the write pool. Errors are
// logged, not propagated — maintenance failures never abort the Writer.
func (s *Store) Optimize() {
	if _, err := s.write.ExecContext(s.ctx, "PRAGMA optimize;"); chk.E(err) {
		log.W.F("optimize failed: %v", err)
	}
}

// Close releases both pools.
func (s *Store) Close() (err error) {
	if s.read != nil {
		if cerr := s.read.Close(); cerr != nil {
			err = cerr
		}
	}
	if s.write != nil {
		if cerr := s.write.Close(); cerr != nil {
			err = cerr
		}
	}
	return
}
