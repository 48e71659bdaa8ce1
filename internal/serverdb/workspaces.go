package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// Workspace is one tenant boundary on the server.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateWorkspace registers a workspace. An empty id gets a generated one.
func (db *ServerDB) CreateWorkspace(id, name string) (*Workspace, error) {
	if id == "" {
		var err error
		id, err = generateID("ws-")
		if err != nil {
			return nil, fmt.Errorf("generate workspace id: %w", err)
		}
	}
	now := time.Now().UTC()
	if _, err := db.conn.Exec(
		`INSERT INTO workspaces (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, now); err != nil {
		return nil, fmt.Errorf("insert workspace: %w", err)
	}
	return &Workspace{ID: id, Name: name, CreatedAt: now}, nil
}

// GetWorkspace loads one workspace.
func (db *ServerDB) GetWorkspace(id string) (*Workspace, error) {
	var ws Workspace
	err := db.conn.QueryRow(
		`SELECT id, name, created_at FROM workspaces WHERE id = ?`, id).
		Scan(&ws.ID, &ws.Name, &ws.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query workspace: %w", err)
	}
	return &ws, nil
}

// ListWorkspaces returns every workspace, oldest first.
func (db *ServerDB) ListWorkspaces() ([]Workspace, error) {
	rows, err := db.conn.Query(`SELECT id, name, created_at FROM workspaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query workspaces: %w", err)
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var ws Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}
