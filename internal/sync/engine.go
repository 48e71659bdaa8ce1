// Package sync reconciles the local store with the remote authority: it
// drains the outbox (push), applies server-authoritative records (pull),
// and surfaces divergent edits as conflicts for explicit resolution. Push
// and pull for one workspace never overlap; the coordinator guarantees a
// single in-flight sync per workspace.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/conflict"
	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/store"
)

// Engine drives push/pull reconciliation for one device.
type Engine struct {
	store   *store.Store
	remote  RemoteAPI
	coord   *Coordinator
	tracked conflict.Tracked
	cfg     Config

	mu     sync.Mutex
	online bool

	lmu       sync.Mutex
	listeners []func(string, Counts)
}

// NewEngine creates an engine. The coordinator is shared state passed by
// reference; callers that run several engines against one device must share
// one coordinator.
func NewEngine(st *store.Store, remote RemoteAPI, coord *Coordinator, cfg Config) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		store:   st,
		remote:  remote,
		coord:   coord,
		tracked: conflict.DefaultTracked(),
		cfg:     cfg,
		online:  true,
	}
}

// SetTracked overrides the tracked conflict-field set.
func (e *Engine) SetTracked(t conflict.Tracked) {
	e.tracked = t
}

// Sync runs one push+pull pass for a workspace. Concurrent calls for the
// same workspace collapse into one in-flight operation; the extra callers
// receive the first call's result.
func (e *Engine) Sync(ctx context.Context, workspaceID string) (*Result, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("sync: empty workspace id")
	}
	return e.coord.Do(workspaceID, func() (*Result, error) {
		return e.syncOnce(ctx, workspaceID)
	})
}

// SetOnline records connectivity. The offline-to-online transition triggers
// a background sync for the given workspace.
func (e *Engine) SetOnline(workspaceID string, online bool) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	e.mu.Unlock()

	if online && !wasOnline && workspaceID != "" {
		go func() {
			if _, err := e.Sync(context.Background(), workspaceID); err != nil {
				slog.Warn("sync on reconnect", "workspace", workspaceID, "err", err)
			}
		}()
	}
}

// Online reports the last recorded connectivity state.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

func (e *Engine) syncOnce(ctx context.Context, workspaceID string) (*Result, error) {
	result := &Result{WorkspaceID: workspaceID}

	if err := e.push(ctx, workspaceID, result); err != nil {
		return result, err
	}
	if err := e.pull(ctx, workspaceID, result); err != nil {
		return result, err
	}
	e.notifyCounts(workspaceID)
	return result, nil
}

// --- push ---

// push drains the workspace outbox in strict FIFO order. Each action is
// submitted independently; a failure blocks later actions for the same
// entity (ordering) but not for other entities.
func (e *Engine) push(ctx context.Context, workspaceID string, result *Result) error {
	actions, err := e.store.DueActions(workspaceID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("load due actions: %w", err)
	}

	blocked := make(map[string]bool)
	for _, action := range actions {
		key := string(action.EntityKind) + "/" + action.EntityID
		if blocked[key] {
			continue
		}

		if err := e.submit(ctx, action); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.recordFailure(action, err)
			blocked[key] = true
			result.PushFailures++
			continue
		}
		result.Pushed++
	}

	e.notifyCounts(workspaceID)
	return nil
}

// submit performs the single remote call for one action and settles local
// state on success.
func (e *Engine) submit(ctx context.Context, action models.Action) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	switch action.Kind {
	case models.ActionCreate:
		resp, err := e.remote.Create(callCtx, action.WorkspaceID, string(action.EntityKind), action.Payload)
		if err != nil {
			return err
		}
		if err := e.store.AckAction(action.Seq); err != nil {
			return err
		}
		canonicalID := action.EntityID
		if resp.ID != "" && resp.ID != action.EntityID {
			canonicalID = resp.ID
			if err := e.store.AdoptCanonicalID(action.EntityKind, action.EntityID, resp.ID); err != nil {
				return err
			}
		}
		return e.markSynced(action.EntityKind, canonicalID)

	case models.ActionUpdate:
		if err := e.remote.Update(callCtx, action.WorkspaceID, string(action.EntityKind), action.EntityID, action.Payload); err != nil {
			return err
		}
		if err := e.store.AckAction(action.Seq); err != nil {
			return err
		}
		return e.markSynced(action.EntityKind, action.EntityID)

	case models.ActionDelete:
		if err := e.remote.Delete(callCtx, action.WorkspaceID, string(action.EntityKind), action.EntityID); err != nil {
			return err
		}
		return e.store.AckAction(action.Seq)

	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

// markSynced flips an entity to synced after its mutation was acknowledged.
// The entity may have been deleted locally while the push was in flight;
// that is not an error.
func (e *Engine) markSynced(kind models.Kind, id string) error {
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
	rec.SyncStatus = models.SyncSynced
	return repo.Upsert(*rec)
}

// recordFailure schedules the retry or, once attempts are exhausted, marks
// the action failed. A failed DELETE restores the optimistically removed
// entity so the data is not lost.
func (e *Engine) recordFailure(action models.Action, cause error) {
	attempts := action.RetryCount + 1
	maxedOut := attempts >= e.cfg.MaxAttempts
	next := time.Now().UTC().Add(e.backoff(attempts))

	if err := e.store.RecordAttemptFailure(action.Seq, cause.Error(), next, maxedOut); err != nil {
		slog.Error("record push failure", "seq", action.Seq, "err", err)
		return
	}
	slog.Warn("push attempt failed",
		"workspace", action.WorkspaceID, "entity", action.EntityID,
		"kind", action.Kind, "attempt", attempts, "maxed_out", maxedOut, "err", cause)

	if !maxedOut {
		return
	}
	repo, err := e.store.Repo(action.EntityKind)
	if err != nil {
		return
	}
	if action.Kind == models.ActionDelete {
		restored := models.Record{
			ID:          action.EntityID,
			WorkspaceID: action.WorkspaceID,
			Kind:        action.EntityKind,
			UpdatedAt:   time.Now().UTC(),
			SyncStatus:  models.SyncFailed,
			Data:        action.Payload,
		}
		if err := repo.Upsert(restored); err != nil {
			slog.Error("restore entity after failed delete", "id", action.EntityID, "err", err)
		}
		return
	}
	if rec, err := repo.Get(action.EntityID); err == nil {
		rec.SyncStatus = models.SyncFailed
		if err := repo.Upsert(*rec); err != nil {
			slog.Error("mark entity failed", "id", action.EntityID, "err", err)
		}
	}
}

// backoff returns the delay before the given attempt number retries.
func (e *Engine) backoff(attempts int) time.Duration {
	d := e.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= e.cfg.BackoffMax {
			return e.cfg.BackoffMax
		}
	}
	if d > e.cfg.BackoffMax {
		d = e.cfg.BackoffMax
	}
	return d
}

// --- pull ---

// pull fetches remote records for every kind and reconciles them into the
// local store. The cursor advances only when every kind pulled cleanly.
func (e *Engine) pull(ctx context.Context, workspaceID string, result *Result) error {
	pullStart := time.Now().UTC()

	cursor, err := e.store.SyncCursor(workspaceID)
	if err != nil {
		return fmt.Errorf("load sync cursor: %w", err)
	}
	result.FullPull = cursor == nil

	for _, kind := range models.Kinds {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		records, err := e.remote.Pull(callCtx, workspaceID, string(kind), cursor)
		cancel()
		if err != nil {
			return fmt.Errorf("pull %s: %w", kind, err)
		}
		for _, rr := range records {
			if err := e.applyRemote(workspaceID, kind, rr.ID, rr.Data, rr.UpdatedAt, result); err != nil {
				return fmt.Errorf("apply remote %s %s: %w", kind, rr.ID, err)
			}
		}
	}

	if err := e.reenqueueLocalOnly(workspaceID, result); err != nil {
		return fmt.Errorf("re-enqueue local records: %w", err)
	}

	// Advance the cursor only now, after a fully successful pull. Using the
	// pull start time keeps records modified mid-pull inside the next window.
	if err := e.store.SetSyncCursor(workspaceID, pullStart); err != nil {
		return fmt.Errorf("advance sync cursor: %w", err)
	}
	result.CursorAdvanced = true
	return nil
}

// applyRemote reconciles one server-authoritative record with local state.
func (e *Engine) applyRemote(workspaceID string, kind models.Kind, id string, data []byte, updatedAt string, result *Result) error {
	repo, err := e.store.Repo(kind)
	if err != nil {
		return err
	}

	remoteRec := models.Record{
		ID:          id,
		WorkspaceID: workspaceID,
		Kind:        kind,
		UpdatedAt:   parseRemoteTime(updatedAt),
		SyncStatus:  models.SyncSynced,
		Data:        data,
	}

	local, err := repo.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		result.Pulled++
		return repo.Upsert(remoteRec)
	}
	if err != nil {
		return err
	}
	if local.WorkspaceID != "" && local.WorkspaceID != workspaceID {
		// Same id in another tenant's scope; never write across it.
		return nil
	}

	if local.SyncStatus == models.SyncSynced {
		result.Pulled++
		return repo.Upsert(remoteRec)
	}

	// Local has unacknowledged edits: never overwrite. Surface a conflict
	// when a tracked field materially differs.
	c, err := conflict.Detect(*local, remoteRec, e.tracked)
	if err != nil {
		return err
	}
	if c != nil {
		if _, err := e.store.InsertConflict(*c); err != nil {
			return err
		}
		result.Conflicts++
	}
	return nil
}

// reenqueueLocalOnly preserves records that exist only locally: rows created
// before a workspace id was known (or while offline) are adopted into the
// workspace and pushed, never discarded.
func (e *Engine) reenqueueLocalOnly(workspaceID string, result *Result) error {
	// With strict isolation on, rows missing a workspace id are never
	// adopted into the active workspace; they stay local-only.
	isolated, err := e.store.WorkspaceIsolation()
	if err != nil {
		return err
	}

	for _, kind := range models.Kinds {
		repo, err := e.store.Repo(kind)
		if err != nil {
			return err
		}

		// Rows written before the workspace was assigned
		var orphans []models.Record
		if !isolated {
			orphans, err = repo.GetByWorkspace("")
			if err != nil {
				return err
			}
		}
		// Rows in this workspace that never made it into the outbox
		locals, err := repo.GetByWorkspace(workspaceID)
		if err != nil {
			return err
		}
		for _, rec := range locals {
			if rec.SyncStatus == models.SyncLocalOnly {
				orphans = append(orphans, rec)
			}
		}

		for _, rec := range orphans {
			rec.WorkspaceID = workspaceID
			rec.SyncStatus = models.SyncPendingAck
			if err := repo.Upsert(rec); err != nil {
				return err
			}
			if _, err := e.store.Enqueue(models.Action{
				WorkspaceID: workspaceID,
				Kind:        models.ActionCreate,
				EntityKind:  kind,
				EntityID:    rec.ID,
				Payload:     rec.Data,
			}); err != nil {
				return err
			}
			result.Reenqueued++
		}
	}
	return nil
}

func parseRemoteTime(ts string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return time.Now().UTC()
}

// --- conflict resolution ---

// Resolve settles one conflict with an explicit choice. Keeping local
// re-pushes the local version to the remote; keeping remote overwrites the
// local row with the server's version.
func (e *Engine) Resolve(conflictID int64, resolution models.Resolution) error {
	c, err := e.store.GetConflict(conflictID)
	if err != nil {
		return fmt.Errorf("load conflict %d: %w", conflictID, err)
	}
	if c.Resolved {
		return fmt.Errorf("conflict %d already resolved", conflictID)
	}
	repo, err := e.store.Repo(c.EntityKind)
	if err != nil {
		return err
	}

	switch resolution {
	case models.ResolutionLocal:
		// Local wins: push it so the remote converges.
		rec, err := repo.Get(c.EntityID)
		if errors.Is(err, store.ErrNotFound) {
			break // entity deleted since detection; nothing to push
		}
		if err != nil {
			return err
		}
		rec.SyncStatus = models.SyncPendingAck
		if err := repo.Upsert(*rec); err != nil {
			return err
		}
		if _, err := e.store.Enqueue(models.Action{
			WorkspaceID: c.WorkspaceID,
			Kind:        models.ActionUpdate,
			EntityKind:  c.EntityKind,
			EntityID:    c.EntityID,
			Payload:     rec.Data,
		}); err != nil {
			return err
		}

	case models.ResolutionRemote:
		if err := repo.Upsert(models.Record{
			ID:          c.EntityID,
			WorkspaceID: c.WorkspaceID,
			Kind:        c.EntityKind,
			UpdatedAt:   time.Now().UTC(),
			SyncStatus:  models.SyncSynced,
			Data:        c.RemoteData,
		}); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown resolution %q", resolution)
	}

	if err := e.store.ResolveConflict(conflictID, resolution); err != nil {
		return err
	}
	e.notifyCounts(c.WorkspaceID)
	return nil
}

// --- reactive counts ---

// QueueCounts returns the current pending/failed outbox counts.
func (e *Engine) QueueCounts(workspaceID string) (Counts, error) {
	pending, err := e.store.CountPending(workspaceID)
	if err != nil {
		return Counts{}, err
	}
	failed, err := e.store.CountFailed(workspaceID)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Pending: pending, Failed: failed}, nil
}

// SubscribeCounts registers a listener invoked after every pass that may
// have changed the queue counts.
func (e *Engine) SubscribeCounts(fn func(workspaceID string, counts Counts)) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) notifyCounts(workspaceID string) {
	counts, err := e.QueueCounts(workspaceID)
	if err != nil {
		return
	}
	e.lmu.Lock()
	listeners := append([]func(string, Counts){}, e.listeners...)
	e.lmu.Unlock()
	for _, fn := range listeners {
		fn(workspaceID, counts)
	}
}
