package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/models"
)

func TestSyncCursorRoundTrip(t *testing.T) {
	s := testStore(t)

	cursor, err := s.SyncCursor("ws-1")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != nil {
		t.Fatal("fresh store should have no cursor")
	}

	at := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)
	if err := s.SetSyncCursor("ws-1", at); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	cursor, _ = s.SyncCursor("ws-1")
	if cursor == nil || !cursor.Equal(at) {
		t.Errorf("cursor: got %v, want %v", cursor, at)
	}

	// Another workspace's cursor is independent
	if other, _ := s.SyncCursor("ws-2"); other != nil {
		t.Error("ws-2 cursor should be unset")
	}
}

func TestCorruptCursorReadsAsAbsent(t *testing.T) {
	s := testStore(t)
	if err := s.SetKV("sync_cursor:ws-1", "not a timestamp"); err != nil {
		t.Fatalf("set kv: %v", err)
	}
	cursor, err := s.SyncCursor("ws-1")
	if err != nil {
		t.Fatalf("corrupt cursor must not error: %v", err)
	}
	if cursor != nil {
		t.Errorf("corrupt cursor: got %v, want nil (forces full pull)", cursor)
	}
}

func TestWorkspaceIsolationFlag(t *testing.T) {
	s := testStore(t)
	on, _ := s.WorkspaceIsolation()
	if on {
		t.Error("isolation should default off")
	}
	if err := s.SetWorkspaceIsolation(true); err != nil {
		t.Fatalf("set isolation: %v", err)
	}
	if on, _ = s.WorkspaceIsolation(); !on {
		t.Error("isolation flag lost")
	}
}

func TestRescueSnapshotRoundTrip(t *testing.T) {
	s := testStore(t)

	snap, _ := s.RescueSnapshot("ws-1")
	if snap != nil {
		t.Error("fresh store should have no snapshot")
	}

	if err := s.SaveRescueSnapshot("ws-1", json.RawMessage(`{"dropped":3}`)); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	snap, err := s.RescueSnapshot("ws-1")
	if err != nil || snap == nil {
		t.Fatalf("load snapshot: %v %v", snap, err)
	}

	// Corruption reads as absent
	s.SetKV("rescue_snapshot:ws-2", "{broken")
	snap, err = s.RescueSnapshot("ws-2")
	if err != nil || snap != nil {
		t.Errorf("corrupt snapshot: got %v %v, want nil nil", snap, err)
	}
}

func TestPurgeWorkspace(t *testing.T) {
	s := testStore(t)
	repo, _ := s.Repo(models.KindJob)
	repo.Upsert(testRecord("job-1", "ws-1", models.KindJob, models.SyncSynced))
	repo.Upsert(testRecord("job-2", "ws-2", models.KindJob, models.SyncSynced))
	enqueueTest(t, s, "ws-1", "job-1", models.ActionUpdate)
	enqueueTest(t, s, "ws-2", "job-2", models.ActionUpdate)
	s.SetSyncCursor("ws-1", time.Now().UTC())
	s.SetSyncCursor("ws-2", time.Now().UTC())
	s.InsertConflict(models.Conflict{
		WorkspaceID: "ws-1", EntityKind: models.KindJob, EntityID: "job-1",
		LocalData: json.RawMessage(`{}`), RemoteData: json.RawMessage(`{}`),
		Fields: []string{"status"}, DetectedAt: time.Now().UTC(),
	})

	if err := s.PurgeWorkspace("ws-1"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if count, _ := repo.Count("ws-1"); count != 0 {
		t.Errorf("ws-1 records survived purge: %d", count)
	}
	if pending, _ := s.CountPending("ws-1"); pending != 0 {
		t.Errorf("ws-1 outbox survived purge: %d", pending)
	}
	if conflicts, _ := s.UnresolvedConflicts("ws-1"); len(conflicts) != 0 {
		t.Errorf("ws-1 conflicts survived purge: %d", len(conflicts))
	}
	if cursor, _ := s.SyncCursor("ws-1"); cursor != nil {
		t.Error("cursor survived purge; next pull would silently skip old records")
	}

	// The other workspace is untouched
	if count, _ := repo.Count("ws-2"); count != 1 {
		t.Errorf("ws-2 records: got %d, want 1", count)
	}
	if pending, _ := s.CountPending("ws-2"); pending != 1 {
		t.Errorf("ws-2 outbox: got %d, want 1", pending)
	}
	if cursor, _ := s.SyncCursor("ws-2"); cursor == nil {
		t.Error("ws-2 cursor cleared by ws-1 purge")
	}
}

func TestPurgeAll(t *testing.T) {
	s := testStore(t)
	repo, _ := s.Repo(models.KindJob)
	repo.Upsert(testRecord("job-1", "ws-1", models.KindJob, models.SyncSynced))
	enqueueTest(t, s, "ws-1", "job-1", models.ActionUpdate)
	s.SetSyncCursor("ws-1", time.Now().UTC())
	s.SetWorkspaceIsolation(true)

	if err := s.PurgeAll(); err != nil {
		t.Fatalf("purge all: %v", err)
	}
	total, err := s.TotalRows()
	if err != nil {
		t.Fatalf("total rows: %v", err)
	}
	if total != 0 {
		t.Errorf("rows after purge all: got %d, want 0", total)
	}
}
