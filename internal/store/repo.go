package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const timeFormat = "2006-01-02 15:04:05"

// Repository is the capability set for one entity kind. The SQLite adapter
// backs production; an in-memory adapter backs tests.
type Repository interface {
	Upsert(rec models.Record) error
	Get(id string) (*models.Record, error)
	GetByWorkspace(workspaceID string) ([]models.Record, error)
	Delete(id string) error
	Count(workspaceID string) (int64, error)
}

// Repo returns the repository for the given entity kind.
func (s *Store) Repo(kind models.Kind) (Repository, error) {
	if !models.ValidKind(kind) {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return &sqliteRepo{store: s, kind: kind}, nil
}

// sqliteRepo implements Repository against one per-kind table. The table
// name comes from the validated kind constant, never from caller input.
type sqliteRepo struct {
	store *Store
	kind  models.Kind
}

func (r *sqliteRepo) Upsert(rec models.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("upsert %s: empty id", r.kind)
	}
	data := rec.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	status := rec.SyncStatus
	if status == "" {
		status = models.SyncLocalOnly
	}
	return r.store.withWriteLock(func() error {
		_, err := r.store.conn.Exec(fmt.Sprintf(`
			INSERT INTO %s (id, workspace_id, updated_at, sync_status, data)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				workspace_id = excluded.workspace_id,
				updated_at = excluded.updated_at,
				sync_status = excluded.sync_status,
				data = excluded.data`, r.kind),
			rec.ID, rec.WorkspaceID, updatedAt.Format(timeFormat), string(status), string(data))
		if err != nil {
			return fmt.Errorf("upsert %s %s: %w", r.kind, rec.ID, err)
		}
		return nil
	})
}

func (r *sqliteRepo) Get(id string) (*models.Record, error) {
	row := r.store.conn.QueryRow(fmt.Sprintf(
		`SELECT id, workspace_id, updated_at, sync_status, data FROM %s WHERE id = ?`, r.kind), id)
	rec, err := scanRecord(row, r.kind)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", r.kind, id, err)
	}
	return rec, nil
}

func (r *sqliteRepo) GetByWorkspace(workspaceID string) ([]models.Record, error) {
	rows, err := r.store.conn.Query(fmt.Sprintf(
		`SELECT id, workspace_id, updated_at, sync_status, data
		 FROM %s WHERE workspace_id = ? ORDER BY id`, r.kind), workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query %s by workspace: %w", r.kind, err)
	}
	defer rows.Close()

	var recs []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows, r.kind)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", r.kind, err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func (r *sqliteRepo) Delete(id string) error {
	return r.store.withWriteLock(func() error {
		_, err := r.store.conn.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.kind), id)
		if err != nil {
			return fmt.Errorf("delete %s %s: %w", r.kind, id, err)
		}
		return nil
	})
}

func (r *sqliteRepo) Count(workspaceID string) (int64, error) {
	var count int64
	err := r.store.conn.QueryRow(fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE workspace_id = ?`, r.kind), workspaceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.kind, err)
	}
	return count, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable, kind models.Kind) (*models.Record, error) {
	var (
		rec    models.Record
		ts     string
		status string
		data   string
	)
	if err := row.Scan(&rec.ID, &rec.WorkspaceID, &ts, &status, &data); err != nil {
		return nil, err
	}
	rec.Kind = kind
	rec.SyncStatus = models.SyncStatus(status)
	rec.Data = json.RawMessage(data)
	if parsed, err := parseTimestamp(ts); err == nil {
		rec.UpdatedAt = parsed
	}
	return &rec, nil
}

// parseTimestamp accepts the SQLite datetime format and RFC3339.
func parseTimestamp(ts string) (time.Time, error) {
	if t, err := time.Parse(timeFormat, ts); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, ts)
}
