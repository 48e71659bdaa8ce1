package serverdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Entity is one canonical record as the server stores it.
type Entity struct {
	WorkspaceID string          `json:"workspace_id"`
	Kind        string          `json:"kind"`
	ID          string          `json:"id"`
	Data        json.RawMessage `json:"data"`
	ModifiedAt  time.Time       `json:"modified_at"`
}

// CreateEntity stores a new record. Creation is idempotent by the
// client-supplied id: replaying a create whose ack was lost adopts the
// existing record instead of duplicating it. A payload without an id gets a
// generated one, which becomes the canonical id the client adopts.
func (db *ServerDB) CreateEntity(workspaceID, kind string, data json.RawMessage) (*Entity, bool, error) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, false, fmt.Errorf("parse entity payload: %w", err)
	}

	id := body.ID
	if id == "" {
		var err error
		id, err = generateID(kind + "-")
		if err != nil {
			return nil, false, fmt.Errorf("generate entity id: %w", err)
		}
	}

	existing, err := db.GetEntity(workspaceID, kind, id)
	if err == nil {
		return existing, false, nil
	}
	if err != ErrNotFound {
		return nil, false, err
	}

	now := time.Now().UTC()
	if _, err := db.conn.Exec(
		`INSERT INTO entities (workspace_id, kind, id, data, modified_at) VALUES (?, ?, ?, ?, ?)`,
		workspaceID, kind, id, string(data), now); err != nil {
		return nil, false, fmt.Errorf("insert entity: %w", err)
	}
	return &Entity{WorkspaceID: workspaceID, Kind: kind, ID: id, Data: data, ModifiedAt: now}, true, nil
}

// UpsertEntity replaces a record's data, bumping its modification time.
func (db *ServerDB) UpsertEntity(workspaceID, kind, id string, data json.RawMessage) (*Entity, error) {
	now := time.Now().UTC()
	if _, err := db.conn.Exec(`
		INSERT INTO entities (workspace_id, kind, id, data, modified_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, kind, id) DO UPDATE SET data = excluded.data, modified_at = excluded.modified_at`,
		workspaceID, kind, id, string(data), now); err != nil {
		return nil, fmt.Errorf("upsert entity: %w", err)
	}
	return &Entity{WorkspaceID: workspaceID, Kind: kind, ID: id, Data: data, ModifiedAt: now}, nil
}

// GetEntity loads one record within a workspace.
func (db *ServerDB) GetEntity(workspaceID, kind, id string) (*Entity, error) {
	var (
		e    Entity
		data string
	)
	err := db.conn.QueryRow(`
		SELECT workspace_id, kind, id, data, modified_at
		FROM entities WHERE workspace_id = ? AND kind = ? AND id = ?`,
		workspaceID, kind, id).
		Scan(&e.WorkspaceID, &e.Kind, &e.ID, &data, &e.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query entity: %w", err)
	}
	e.Data = json.RawMessage(data)
	return &e, nil
}

// DeleteEntity removes a record. Deleting an absent record is not an error:
// the client's delete is already satisfied.
func (db *ServerDB) DeleteEntity(workspaceID, kind, id string) error {
	_, err := db.conn.Exec(
		`DELETE FROM entities WHERE workspace_id = ? AND kind = ? AND id = ?`,
		workspaceID, kind, id)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

// ListEntities returns records of one kind in a workspace, optionally only
// those modified after the given cursor, oldest modification first.
func (db *ServerDB) ListEntities(workspaceID, kind string, modifiedAfter *time.Time) ([]Entity, error) {
	query := `
		SELECT workspace_id, kind, id, data, modified_at
		FROM entities WHERE workspace_id = ? AND kind = ?`
	args := []any{workspaceID, kind}
	if modifiedAfter != nil {
		query += ` AND modified_at > ?`
		args = append(args, modifiedAfter.UTC())
	}
	query += ` ORDER BY modified_at ASC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var (
			e    Entity
			data string
		)
		if err := rows.Scan(&e.WorkspaceID, &e.Kind, &e.ID, &data, &e.ModifiedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

// WorkspaceStatus summarises one workspace: per-kind entity counts and the
// most recent modification.
type WorkspaceStatus struct {
	WorkspaceID  string           `json:"workspace_id"`
	Counts       map[string]int64 `json:"counts"`
	LastModified *time.Time       `json:"last_modified,omitempty"`
}

// Status computes the workspace summary.
func (db *ServerDB) Status(workspaceID string) (*WorkspaceStatus, error) {
	rows, err := db.conn.Query(`
		SELECT kind, COUNT(*), MAX(modified_at)
		FROM entities WHERE workspace_id = ? GROUP BY kind`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query status: %w", err)
	}
	defer rows.Close()

	status := &WorkspaceStatus{WorkspaceID: workspaceID, Counts: make(map[string]int64)}
	for rows.Next() {
		var (
			kind     string
			count    int64
			modified time.Time
		)
		if err := rows.Scan(&kind, &count, &modified); err != nil {
			return nil, err
		}
		status.Counts[kind] = count
		if status.LastModified == nil || modified.After(*status.LastModified) {
			m := modified
			status.LastModified = &m
		}
	}
	return status, rows.Err()
}
