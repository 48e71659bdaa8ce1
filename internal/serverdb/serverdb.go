// Package serverdb is the remote authority's storage: workspaces, hashed
// API keys, and the canonical entity records every device converges on.
package serverdb

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ServerDB wraps the server database connection.
type ServerDB struct {
	conn *sql.DB
	path string
}

// Open opens the server database, creating and migrating it as needed.
func Open(dbPath string) (*ServerDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	conn.Exec("PRAGMA foreign_keys=ON")

	if _, err := conn.Exec(serverSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db := &ServerDB{conn: conn, path: dbPath}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Ping checks the database connection is alive.
func (db *ServerDB) Ping() error {
	return db.conn.Ping()
}

// Close checkpoints the WAL and closes the connection.
func (db *ServerDB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// RunMigrations applies pending schema migrations in version order.
func (db *ServerDB) RunMigrations() (int, error) {
	currentVersion := db.getSchemaVersion()
	if currentVersion >= ServerSchemaVersion {
		return 0, nil
	}

	migrationsRun := 0
	for _, m := range Migrations {
		if m.Version > currentVersion {
			if _, err := db.conn.Exec(m.SQL); err != nil {
				return migrationsRun, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if err := db.setSchemaVersion(m.Version); err != nil {
				return migrationsRun, fmt.Errorf("set version %d: %w", m.Version, err)
			}
			migrationsRun++
		}
	}

	if currentVersion == 0 {
		if err := db.setSchemaVersion(ServerSchemaVersion); err != nil {
			return migrationsRun, err
		}
	}
	return migrationsRun, nil
}

func (db *ServerDB) getSchemaVersion() int {
	var version string
	if err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version); err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (db *ServerDB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// generateID creates a random id with the given prefix.
func generateID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}
