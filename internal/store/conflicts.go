package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vm799/trust-by-design-sub003/internal/models"
)

// InsertConflict records a newly detected conflict, unresolved.
func (s *Store) InsertConflict(c models.Conflict) (int64, error) {
	fields, err := json.Marshal(c.Fields)
	if err != nil {
		return 0, fmt.Errorf("marshal conflict fields: %w", err)
	}
	var id int64
	err = s.withWriteLock(func() error {
		res, err := s.conn.Exec(`
			INSERT INTO conflicts (workspace_id, entity_kind, entity_id, local_data, remote_data, fields, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.WorkspaceID, string(c.EntityKind), c.EntityID,
			string(c.LocalData), string(c.RemoteData), string(fields),
			c.DetectedAt.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// UnresolvedConflicts returns open conflicts for a workspace, oldest first.
func (s *Store) UnresolvedConflicts(workspaceID string) ([]models.Conflict, error) {
	rows, err := s.conn.Query(`
		SELECT id, workspace_id, entity_kind, entity_id, local_data, remote_data, fields, detected_at, resolved, resolution
		FROM conflicts
		WHERE workspace_id = ? AND resolved = 0
		ORDER BY id ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()
	return scanConflicts(rows)
}

// GetConflict loads one conflict by id.
func (s *Store) GetConflict(id int64) (*models.Conflict, error) {
	rows, err := s.conn.Query(`
		SELECT id, workspace_id, entity_kind, entity_id, local_data, remote_data, fields, detected_at, resolved, resolution
		FROM conflicts WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query conflict %d: %w", id, err)
	}
	defer rows.Close()
	conflicts, err := scanConflicts(rows)
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return nil, ErrNotFound
	}
	return &conflicts[0], nil
}

// ResolveConflict marks a conflict resolved with the chosen side.
func (s *Store) ResolveConflict(id int64, resolution models.Resolution) error {
	return s.withWriteLock(func() error {
		res, err := s.conn.Exec(
			`UPDATE conflicts SET resolved = 1, resolution = ? WHERE id = ? AND resolved = 0`,
			string(resolution), id)
		if err != nil {
			return fmt.Errorf("resolve conflict %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("resolve conflict %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

func scanConflicts(rows *sql.Rows) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	for rows.Next() {
		var (
			c                        models.Conflict
			kind, local, remote      string
			fieldsJSON, detectedAt   string
			resolved                 int
			resolution               sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &kind, &c.EntityID,
			&local, &remote, &fieldsJSON, &detectedAt, &resolved, &resolution); err != nil {
			return nil, fmt.Errorf("scan conflict row: %w", err)
		}
		c.EntityKind = models.Kind(kind)
		c.LocalData = json.RawMessage(local)
		c.RemoteData = json.RawMessage(remote)
		c.Resolved = resolved != 0
		if resolution.Valid {
			r := models.Resolution(resolution.String)
			c.Resolution = &r
		}
		// Corrupted field lists read as empty, not as an error
		_ = json.Unmarshal([]byte(fieldsJSON), &c.Fields)
		if t, err := parseTimestamp(detectedAt); err == nil {
			c.DetectedAt = t
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}
