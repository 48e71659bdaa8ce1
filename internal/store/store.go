// Package store is the durable per-device storage layer: one SQLite table
// per entity kind, an outbox table ordered by creation sequence, a conflicts
// table, and a key-value space holding the sync cursor and rescue snapshots.
// Every query is scoped by workspace id; nothing crosses tenant boundaries.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const dbFile = ".tbd/evidence.db"

// Store wraps the device database connection.
type Store struct {
	conn    *sql.DB
	baseDir string
	mu      sync.Mutex // serializes write transactions
}

// Open opens an existing device database and runs pending migrations.
func Open(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: run 'tbd init' first")
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{conn: conn, baseDir: baseDir}
	if _, err := s.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Initialize creates the device database, applies the schema and migrations.
func Initialize(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{conn: conn, baseDir: baseDir}
	if _, err := s.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func openConn(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL gives concurrent reads while writes stay serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	return conn, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn exposes the underlying *sql.DB for callers that need transactions.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Path returns the database file path.
func (s *Store) Path() string {
	return filepath.Join(s.baseDir, dbFile)
}

// withWriteLock serializes logical writers. Reads stay concurrent under WAL.
func (s *Store) withWriteLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// NewID generates a short random id with the given prefix (e.g. "job-").
func NewID(prefix string) (string, error) {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(bytes), nil
}
