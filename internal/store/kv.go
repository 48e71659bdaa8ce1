package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Key layout for the kv space. Workspace-scoped keys embed the workspace id
// so a workspace-scoped reset can find them.
const (
	cursorKeyPrefix  = "sync_cursor:"
	rescueKeyPrefix  = "rescue_snapshot:"
	isolationFlagKey = "workspace_isolation"
)

// GetKV returns the raw value for a key, or "" when absent.
func (s *Store) GetKV(key string) (string, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, nil
}

// SetKV stores a raw value under a key.
func (s *Store) SetKV(key, value string) error {
	return s.withWriteLock(func() error {
		_, err := s.conn.Exec(`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, value)
		if err != nil {
			return fmt.Errorf("kv set %q: %w", key, err)
		}
		return nil
	})
}

// DeleteKV removes a key.
func (s *Store) DeleteKV(key string) error {
	return s.withWriteLock(func() error {
		_, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, key)
		return err
	})
}

// SyncCursor returns the last successful pull timestamp for a workspace.
// Absence (or an unparseable stored value) returns nil, which forces a full
// pull; corruption is treated as absent, never an error.
func (s *Store) SyncCursor(workspaceID string) (*time.Time, error) {
	raw, err := s.GetKV(cursorKeyPrefix + workspaceID)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

// SetSyncCursor advances the pull cursor. Call only after a fully
// successful pull.
func (s *Store) SetSyncCursor(workspaceID string, at time.Time) error {
	return s.SetKV(cursorKeyPrefix+workspaceID, at.UTC().Format(time.RFC3339Nano))
}

// WorkspaceIsolation reports whether the isolation flag is set. A corrupted
// value reads as false.
func (s *Store) WorkspaceIsolation() (bool, error) {
	raw, err := s.GetKV(isolationFlagKey)
	if err != nil {
		return false, err
	}
	return raw == "1" || raw == "true", nil
}

// SetWorkspaceIsolation sets the isolation flag.
func (s *Store) SetWorkspaceIsolation(on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	return s.SetKV(isolationFlagKey, v)
}

// SaveRescueSnapshot stores the serialized output of a quota rescue so the
// caller can inspect what survived a truncation.
func (s *Store) SaveRescueSnapshot(workspaceID string, snapshot json.RawMessage) error {
	return s.SetKV(rescueKeyPrefix+workspaceID, string(snapshot))
}

// RescueSnapshot loads the last rescue snapshot for a workspace. Corrupted
// JSON is treated as absent.
func (s *Store) RescueSnapshot(workspaceID string) (json.RawMessage, error) {
	raw, err := s.GetKV(rescueKeyPrefix + workspaceID)
	if err != nil {
		return nil, err
	}
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// PurgeWorkspace removes every record, outbox action, conflict and kv key
// belonging to one workspace. The sync cursor is cleared in the same
// transaction: leaving it behind would make the next incremental pull
// silently skip everything created before the purge.
func (s *Store) PurgeWorkspace(workspaceID string) error {
	return s.withWriteLock(func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin purge tx: %w", err)
		}
		defer tx.Rollback()

		for _, table := range entityTables {
			if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE workspace_id = ?`, table), workspaceID); err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM outbox WHERE workspace_id = ?`, workspaceID); err != nil {
			return fmt.Errorf("purge outbox: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM conflicts WHERE workspace_id = ?`, workspaceID); err != nil {
			return fmt.Errorf("purge conflicts: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM kv WHERE key LIKE '%' || ? || '%'`, workspaceID); err != nil {
			return fmt.Errorf("purge kv: %w", err)
		}
		return tx.Commit()
	})
}

// PurgeAll empties every application table, cursors included, in one
// transaction.
func (s *Store) PurgeAll() error {
	return s.withWriteLock(func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin purge tx: %w", err)
		}
		defer tx.Rollback()

		for _, table := range entityTables {
			if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
		}
		for _, table := range []string{"outbox", "conflicts", "kv"} {
			if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
		}
		return tx.Commit()
	})
}

// TotalRows counts rows across every application table, used by reset
// verification.
func (s *Store) TotalRows() (int64, error) {
	var total int64
	tables := append(append([]string{}, entityTables...), "outbox", "conflicts", "kv")
	for _, table := range tables {
		var n int64
		if err := s.conn.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
			return 0, fmt.Errorf("count %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}
