// Package store is Ember's single-writer embedded SQL layer. A single
// goroutine owns the only write-capable connection to SQLite; every
// mutation is funneled through a bounded command channel so SQLite
// never sees concurrent writers. Reads run against a separate
// multi-connection pool.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// openWriter opens the single connection used for all mutations.
// SQLite allows exactly one writer at a time, so this handle is
// capped at one open connection and is never touched outside the
// writer task.
func openWriter(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("store: open writer connection: %w", err)
	}
	if err := configureConn(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// openReaders opens a pool used for concurrent read queries. WAL mode
// lets readers proceed without blocking on the writer.
func openReaders(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("store: open reader pool: %w", err)
	}
	if err := configureConn(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(8)
	return db, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return path + "?_busy_timeout=5000"
}

func configureConn(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("store: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("store: enable foreign keys: %w", err)
	}
	return nil
}

// Checkpoint forces a WAL checkpoint, truncating the WAL file. Called
// during graceful shutdown so the database directory doesn't carry an
// unbounded WAL around between restarts.
func (s *Store) Checkpoint() error {
	_, err := s.writerConn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
