// Package store provides the durable embedded key-value engine (C1) that
// every other component persists through: named typed tables with ACID
// single-writer transactions, range scans, and atomic multi-table
// commits.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite" // pure-Go, cgo-free driver
)

var (
	// ErrNotFound is returned when a key does not exist in a table.
	ErrNotFound = errors.New("store: key not found")
)

// Store wraps a single embedded SQLite database. Writes are serialized
// through mu so that "single-writer" holds even though database/sql
// itself would otherwise allow concurrent writers to contend on SQLite's
// own file lock; serializing in-process avoids SQLITE_BUSY retries on
// the common path.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	log    *slog.Logger
	tables map[string]struct{}
	tmu    sync.Mutex
}

// Open opens (creating if absent) the embedded store at path. Use
// ":memory:" for an ephemeral store (tests).
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// SQLite only supports one writer at a time regardless of pool size;
	// a single connection avoids cross-connection SQLITE_BUSY entirely.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		log:    slog.Default().With("component", "store"),
		tables: make(map[string]struct{}),
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureTable lazily creates the backing SQL table for a named typed
// table on first use. Table names come from trusted, compile-time
// constants in calling packages, never from external input, so building
// the CREATE TABLE statement by name concatenation is safe.
func (s *Store) ensureTable(ctx context.Context, name string) error {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if _, ok := s.tables[name]; ok {
		return nil
	}

	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (key TEXT PRIMARY KEY, value BLOB NOT NULL)`, name,
	))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("store: create table %s: %w", name, err)
	}
	s.tables[name] = struct{}{}
	return nil
}

// Tx represents one atomic multi-table commit. All reads/writes issued
// through it happen inside a single SQLite transaction.
type Tx struct {
	store *Store
	tx    *sql.Tx
}

// WithTx runs fn inside a single write transaction spanning however many
// tables fn touches. Either every table's writes land, or none do.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	tx := &Tx{store: s, tx: sqlTx}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// ensureTableLocked creates a table using the transaction's connection.
// Callers must already hold s.mu (true for any code running inside
// WithTx) and must not call this from outside a transaction.
func (s *Store) ensureTableLocked(ctx context.Context, tx *sql.Tx, name string) error {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if _, ok := s.tables[name]; ok {
		return nil
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (key TEXT PRIMARY KEY, value BLOB NOT NULL)`, name,
	)); err != nil {
		return fmt.Errorf("store: create table %s: %w", name, err)
	}
	s.tables[name] = struct{}{}
	return nil
}
