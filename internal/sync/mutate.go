package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/store"
)

// Local mutations are optimistic: the store commits first and the remote
// propagation rides the outbox. A mutation never fails because the network
// is down; it degrades to background retry.

// CreateLocal writes a new entity and enqueues its CREATE action. The
// returned record is immediately visible to reads with status pending-ack.
func (e *Engine) CreateLocal(workspaceID string, kind models.Kind, id string, data json.RawMessage) (*models.Record, error) {
	repo, err := e.store.Repo(kind)
	if err != nil {
		return nil, err
	}
	rec := models.Record{
		ID:          id,
		WorkspaceID: workspaceID,
		Kind:        kind,
		UpdatedAt:   time.Now().UTC(),
		SyncStatus:  models.SyncPendingAck,
		Data:        data,
	}
	if workspaceID == "" {
		// Workspace not assigned yet: the record stays local-only and is
		// adopted and re-enqueued by the next pull.
		rec.SyncStatus = models.SyncLocalOnly
	}
	if err := repo.Upsert(rec); err != nil {
		return nil, err
	}
	if workspaceID != "" {
		if _, err := e.store.Enqueue(models.Action{
			WorkspaceID: workspaceID,
			Kind:        models.ActionCreate,
			EntityKind:  kind,
			EntityID:    id,
			Payload:     data,
		}); err != nil {
			return nil, err
		}
		e.notifyCounts(workspaceID)
	}
	return &rec, nil
}

// UpdateLocal overwrites an entity's domain fields and enqueues an UPDATE
// carrying the full payload snapshot.
func (e *Engine) UpdateLocal(workspaceID string, kind models.Kind, id string, data json.RawMessage) (*models.Record, error) {
	repo, err := e.store.Repo(kind)
	if err != nil {
		return nil, err
	}
	rec, err := repo.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.WorkspaceID != "" && rec.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("update %s %s: record belongs to another workspace", kind, id)
	}
	rec.Data = data
	rec.UpdatedAt = time.Now().UTC()
	rec.SyncStatus = models.SyncPendingAck
	if err := repo.Upsert(*rec); err != nil {
		return nil, err
	}
	if _, err := e.store.Enqueue(models.Action{
		WorkspaceID: workspaceID,
		Kind:        models.ActionUpdate,
		EntityKind:  kind,
		EntityID:    id,
		Payload:     data,
	}); err != nil {
		return nil, err
	}
	e.notifyCounts(workspaceID)
	return rec, nil
}

// DeleteLocal removes an entity optimistically and enqueues a DELETE. The
// action keeps a full snapshot so a permanently failed delete can restore
// the row.
func (e *Engine) DeleteLocal(workspaceID string, kind models.Kind, id string) error {
	repo, err := e.store.Repo(kind)
	if err != nil {
		return err
	}
	rec, err := repo.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.WorkspaceID != "" && rec.WorkspaceID != workspaceID {
		return fmt.Errorf("delete %s %s: record belongs to another workspace", kind, id)
	}
	if err := repo.Delete(id); err != nil {
		return err
	}
	if _, err := e.store.Enqueue(models.Action{
		WorkspaceID: workspaceID,
		Kind:        models.ActionDelete,
		EntityKind:  kind,
		EntityID:    id,
		Payload:     rec.Data,
	}); err != nil {
		return err
	}
	e.notifyCounts(workspaceID)
	return nil
}
