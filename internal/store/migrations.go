package store

import (
	"database/sql"
	"fmt"
)

// GetSchemaVersion returns the schema version recorded in the database.
// A missing table or row means version 0 (pre-migration).
func (s *Store) GetSchemaVersion() (int, error) {
	var version string
	err := s.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, nil
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v, nil
}

// SetSchemaVersion records the schema version.
func (s *Store) SetSchemaVersion(version int) error {
	return s.withWriteLock(func() error {
		_, err := s.conn.Exec(
			"INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)",
			fmt.Sprintf("%d", version))
		return err
	})
}

func (s *Store) tableExists(table string) (bool, error) {
	var count int
	err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) columnExists(table, column string) (bool, error) {
	rows, err := s.conn.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// RunMigrations applies pending schema migrations in order, before any other
// operation touches the database. Returns the number applied.
func (s *Store) RunMigrations() (int, error) {
	version, err := s.GetSchemaVersion()
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}

	applied := 0

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return applied, fmt.Errorf("migrate to v1: %w", err)
		}
		applied++
	}

	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return applied, fmt.Errorf("migrate to v2: %w", err)
		}
		applied++
	}

	if applied > 0 {
		if err := s.SetSchemaVersion(SchemaVersion); err != nil {
			return applied, fmt.Errorf("set schema version: %w", err)
		}
	}
	return applied, nil
}

// migrateToV1 creates any table missing from a pre-versioned database.
func (s *Store) migrateToV1() error {
	_, err := s.conn.Exec(schema)
	return err
}

// migrateToV2 adds last_error to outbox rows created before it existed.
func (s *Store) migrateToV2() error {
	exists, err := s.columnExists("outbox", "last_error")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.conn.Exec(`ALTER TABLE outbox ADD COLUMN last_error TEXT NOT NULL DEFAULT ''`)
	return err
}
