package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Store is Ember's embedded SQL layer: a read pool for concurrent
// queries plus a single writer goroutine that owns the only
// write-capable connection. All mutations are submitted as commands
// over a bounded channel and processed one at a time, which is what
// lets SQLite (a single-writer database) serve a concurrently-accessed
// chat server without lock contention or "database is locked" errors.
type Store struct {
	writerConn *sql.DB
	readerPool *sql.DB

	commands chan command
	done     chan struct{}
}

// command wraps a unit of write work. The closure built by submit
// delivers its own result to the submitter's reply channel.
type command struct {
	run func(db *sql.DB) error
}

// Open opens (creating if necessary) the SQLite database at path,
// runs pending migrations, and starts the writer goroutine.
func Open(path string) (*Store, error) {
	writerConn, err := openWriter(path)
	if err != nil {
		return nil, err
	}

	if err := migrate(writerConn); err != nil {
		_ = writerConn.Close()
		return nil, wrap(KindMigration, "migrate", err)
	}

	// Every connection to ":memory:" opens its own private database, so
	// an in-memory store reads through the writer's single connection.
	readerPool := writerConn
	if path != ":memory:" {
		readerPool, err = openReaders(path)
		if err != nil {
			_ = writerConn.Close()
			return nil, err
		}
	}

	s := &Store{
		writerConn: writerConn,
		readerPool: readerPool,
		commands:   make(chan command, 1000),
		done:       make(chan struct{}),
	}
	go s.writerLoop()
	return s, nil
}

// writerLoop is the single goroutine permitted to execute statements
// against writerConn. It processes commands strictly in arrival order.
func (s *Store) writerLoop() {
	defer close(s.done)
	for cmd := range s.commands {
		_ = cmd.run(s.writerConn)
	}
}

// submit enqueues a write command and blocks until the writer
// goroutine has executed it (or the store is closing).
func submit[T any](ctx context.Context, s *Store, fn func(db *sql.DB) (T, error)) (T, error) {
	var zero T
	reply := make(chan struct {
		val T
		err error
	}, 1)

	cmd := command{run: func(db *sql.DB) error {
		val, err := fn(db)
		reply <- struct {
			val T
			err error
		}{val, err}
		return err
	}}

	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.done:
		return zero, ErrWriterChannelClosed
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-s.done:
		return zero, ErrWriterChannelClosed
	}
}

// Close stops accepting new writes, waits for in-flight ones to
// drain, checkpoints the WAL, and closes both connections.
func (s *Store) Close() error {
	close(s.commands)
	<-s.done
	if err := s.Checkpoint(); err != nil {
		return fmt.Errorf("store: checkpoint on close: %w", err)
	}
	if err := s.readerPool.Close(); err != nil {
		return fmt.Errorf("store: close reader pool: %w", err)
	}
	if err := s.writerConn.Close(); err != nil {
		return fmt.Errorf("store: close writer connection: %w", err)
	}
	return nil
}
